// Package kdtree implements the per-leaf balanced k-d tree (C5): built
// once over a leaf's cell-relative positions, supporting bounded k-NN and
// nearest-to-line-segment queries, per spec.md §4.4.
//
// The build shape (recurse over children, then freeze into a flat array)
// follows the teacher's post-order collapse-then-store recursion in
// trie/committer.go, generalized from a trie's byte-path split to a
// median-of-widest-axis geometric split.
package kdtree

import (
	"encoding/binary"
	"math"
	"sort"
)

// Tree is an immutable k-d tree built over a fixed point set. It stores a
// permutation of the original indices plus, for each internal slot, the
// splitting axis -- the same "permutation + split planes" layout
// spec.md §6 specifies for the persisted KdTree blob.
type Tree struct {
	points []([3]float32)
	// perm[i] is the original point index stored at node i of the
	// implicit balanced binary tree (node 0 is the root, node i's
	// children are at 2i+1 and 2i+2).
	perm []int32
	axis []int8
}

// Build constructs a Tree over points. The tree is balanced by
// recursively partitioning on the widest axis of the current slice's
// bounding box and taking the median as the split point, which keeps
// build at O(n log n) and query at O(log n + k) as required by
// spec.md §5.
func Build(points [][3]float32) *Tree {
	n := len(points)
	t := &Tree{
		points: points,
		perm:   make([]int32, n),
		axis:   make([]int8, n),
	}
	for i := range t.perm {
		t.perm[i] = -1
		t.axis[i] = -1
	}
	idx := make([]int32, n)
	for i := range idx {
		idx[i] = int32(i)
	}
	t.build(idx, 0)
	return t
}

func (t *Tree) build(idx []int32, node int) {
	if len(idx) == 0 {
		return
	}
	if len(idx) == 1 {
		t.place(node, idx[0], -1)
		return
	}
	ax := widestAxis(t.points, idx)
	sort.Slice(idx, func(i, j int) bool {
		return t.points[idx[i]][ax] < t.points[idx[j]][ax]
	})
	mid := len(idx) / 2
	t.place(node, idx[mid], int8(ax))
	t.build(idx[:mid], 2*node+1)
	t.build(idx[mid+1:], 2*node+2)
}

func (t *Tree) place(node int, pointIdx int32, axis int8) {
	for len(t.perm) <= node {
		t.perm = append(t.perm, -1)
		t.axis = append(t.axis, -1)
	}
	t.perm[node] = pointIdx
	t.axis[node] = axis
}

func widestAxis(points [][3]float32, idx []int32) int {
	var min, max [3]float32
	min, max = points[idx[0]], points[idx[0]]
	for _, i := range idx[1:] {
		p := points[i]
		for a := 0; a < 3; a++ {
			if p[a] < min[a] {
				min[a] = p[a]
			}
			if p[a] > max[a] {
				max[a] = p[a]
			}
		}
	}
	best, bestW := 0, max[0]-min[0]
	for a := 1; a < 3; a++ {
		if w := max[a] - min[a]; w > bestW {
			best, bestW = a, w
		}
	}
	return best
}

// Len returns the number of points indexed.
func (t *Tree) Len() int { return len(t.points) }

// Neighbour is a single k-NN or near-line result.
type Neighbour struct {
	Index    int
	Distance float64
}

// KNearest returns up to k points within radius of query, sorted by
// distance (ties broken by lower index), per spec.md §4.4.
func (t *Tree) KNearest(query [3]float32, radius float64, k int) []Neighbour {
	if k <= 0 || len(t.perm) == 0 {
		return nil
	}
	h := &neighbourHeap{}
	r2 := radius * radius
	t.searchKNN(0, query, r2, k, h)
	out := h.sorted()
	return out
}

func (t *Tree) searchKNN(node int, query [3]float32, r2 float64, k int, h *neighbourHeap) {
	if node >= len(t.perm) || t.perm[node] < 0 {
		return
	}
	idx := t.perm[node]
	p := t.points[idx]
	d2 := dist2(p, query)
	if d2 <= r2 {
		h.push(Neighbour{Index: int(idx), Distance: math.Sqrt(d2)}, k)
	}
	ax := t.axis[node]
	if ax < 0 {
		return
	}
	diff := float64(query[ax]) - float64(p[ax])
	near, far := 2*node+1, 2*node+2
	if diff > 0 {
		near, far = far, near
	}
	t.searchKNN(near, query, r2, k, h)
	// Only descend into the far side if the splitting plane itself is
	// within the current search radius.
	if diff*diff <= r2 {
		t.searchKNN(far, query, r2, k, h)
	}
}

// NearLine returns up to cap points within radius of the line segment
// p0-p1, sorted by distance, per spec.md §4.4.
func (t *Tree) NearLine(p0, p1 [3]float32, radius float64, cap int) []Neighbour {
	if cap <= 0 || len(t.perm) == 0 {
		return nil
	}
	h := &neighbourHeap{}
	r2 := radius * radius
	t.searchLine(0, p0, p1, r2, cap, h)
	return h.sorted()
}

func (t *Tree) searchLine(node int, p0, p1 [3]float32, r2 float64, cap int, h *neighbourHeap) {
	if node >= len(t.perm) || t.perm[node] < 0 {
		return
	}
	idx := t.perm[node]
	p := t.points[idx]
	d2 := distToSegment2(p, p0, p1)
	if d2 <= r2 {
		h.push(Neighbour{Index: int(idx), Distance: math.Sqrt(d2)}, cap)
	}
	// Conservative: recurse into both children. Pruning by splitting
	// plane distance-to-line is more involved than the point case, and
	// per-leaf point counts are already bounded by split_limit, so an
	// unpruned recursion stays within spec.md's O(n) worst case per
	// leaf while remaining simple and correct.
	t.searchLine(2*node+1, p0, p1, r2, cap, h)
	t.searchLine(2*node+2, p0, p1, r2, cap, h)
}

func dist2(a, b [3]float32) float64 {
	dx := float64(a[0]) - float64(b[0])
	dy := float64(a[1]) - float64(b[1])
	dz := float64(a[2]) - float64(b[2])
	return dx*dx + dy*dy + dz*dz
}

func distToSegment2(p, a, b [3]float32) float64 {
	ax, ay, az := float64(a[0]), float64(a[1]), float64(a[2])
	bx, by, bz := float64(b[0]), float64(b[1]), float64(b[2])
	px, py, pz := float64(p[0]), float64(p[1]), float64(p[2])

	abx, aby, abz := bx-ax, by-ay, bz-az
	apx, apy, apz := px-ax, py-ay, pz-az
	ab2 := abx*abx + aby*aby + abz*abz
	if ab2 == 0 {
		return apx*apx + apy*apy + apz*apz
	}
	tt := (apx*abx + apy*aby + apz*abz) / ab2
	if tt < 0 {
		tt = 0
	} else if tt > 1 {
		tt = 1
	}
	cx, cy, cz := ax+tt*abx, ay+tt*aby, az+tt*abz
	dx, dy, dz := px-cx, py-cy, pz-cz
	return dx*dx + dy*dy + dz*dz
}

// Serialize encodes the tree's internal layout (permutation + split
// axes) for storage under the KdTree attribute, per spec.md §6. The
// tree is regenerable from Positions, so this blob is an optimization,
// not a requirement for correctness.
func (t *Tree) Serialize() []byte {
	n := len(t.perm)
	buf := make([]byte, 4+n*5)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	off := 4
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(t.perm[i]))
		buf[off+4] = byte(t.axis[i])
		off += 5
	}
	return buf
}

// Deserialize reconstructs a Tree's internal layout from a Serialize
// blob, given the same Positions slice it was originally built over.
func Deserialize(points [][3]float32, data []byte) *Tree {
	if len(data) < 4 {
		return Build(points)
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	perm := make([]int32, n)
	axis := make([]int8, n)
	off := 4
	for i := 0; i < n; i++ {
		perm[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		axis[i] = int8(data[off+4])
		off += 5
	}
	return &Tree{points: points, perm: perm, axis: axis}
}
