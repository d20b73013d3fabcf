package query

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/pointstream/pcidx/kdtree"
	"github.com/pointstream/pcidx/octree/node"
)

// Neighbour is one k-NN result, carrying whichever optional attributes
// its source leaf had available alongside position and distance.
type Neighbour struct {
	Position       [3]float64
	Distance       float64
	Color          *[4]uint8
	Normal         *[3]float32
	Intensity      *int32
	Classification *uint8
}

// KNearest finds up to k points within radius of query, per spec.md
// §4.11's k-NN algorithm: a separate recursive algorithm outside the
// uniform traversal skeleton, descending nearest-child-first by sorting
// children on their cells' box distance and pruning children whose box distance already
// exceeds the current k-th best distance.
func KNearest(ctx context.Context, root *node.Node, query [3]float64, radius float64, k int) ([]Neighbour, error) {
	if k <= 0 || root == nil {
		return nil, nil
	}
	acc := &knnAccumulator{k: k, radius: radius}
	if err := knnDescend(ctx, root, query, acc); err != nil {
		return nil, err
	}
	return acc.sorted(), nil
}

type knnAccumulator struct {
	k      int
	radius float64
	best   []Neighbour
}

// worstDistance returns the current k-th best distance, or the
// original search radius while fewer than k candidates have been
// found.
func (a *knnAccumulator) worstDistance() float64 {
	if len(a.best) < a.k {
		return a.radius
	}
	worst := a.best[0].Distance
	for _, n := range a.best[1:] {
		if n.Distance > worst {
			worst = n.Distance
		}
	}
	return worst
}

func (a *knnAccumulator) add(n Neighbour) {
	if len(a.best) < a.k {
		a.best = append(a.best, n)
		return
	}
	worstIdx, worst := 0, a.best[0].Distance
	for i, c := range a.best[1:] {
		if c.Distance > worst {
			worstIdx, worst = i+1, c.Distance
		}
	}
	if n.Distance < worst {
		a.best[worstIdx] = n
	}
}

func (a *knnAccumulator) sorted() []Neighbour {
	out := make([]Neighbour, len(a.best))
	copy(out, a.best)
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// boxDistance returns the distance from p to the nearest point of the
// axis-aligned box [bmin, bmax] (zero if p is inside).
func boxDistance(p, bmin, bmax [3]float64) float64 {
	var d2 float64
	for i := 0; i < 3; i++ {
		if p[i] < bmin[i] {
			d := bmin[i] - p[i]
			d2 += d * d
		} else if p[i] > bmax[i] {
			d := p[i] - bmax[i]
			d2 += d * d
		}
	}
	return math.Sqrt(d2)
}

func knnDescend(ctx context.Context, n *node.Node, query [3]float64, acc *knnAccumulator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := node.Resolve(n)
	if err != nil {
		return fmt.Errorf("query: resolve: %w", err)
	}
	bmin, bmax := boxOf(resolved)
	if boxDistance(query, bmin, bmax) > acc.worstDistance() {
		return nil
	}
	if resolved.IsLeaf() {
		return knnLeaf(resolved, query, acc)
	}
	type ordered struct {
		idx  int
		dist float64
	}
	var order []ordered
	for i := 0; i < 8; i++ {
		c := resolved.Cell.Child(i)
		order = append(order, ordered{idx: i, dist: boxDistance(query, c.Min(), c.Max())})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].dist < order[j].dist })
	for _, o := range order {
		if o.dist > acc.worstDistance() {
			continue
		}
		child, err := resolved.Child(o.idx)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		if err := knnDescend(ctx, child, query, acc); err != nil {
			return err
		}
	}
	return nil
}

func knnLeaf(n *node.Node, query [3]float64, acc *knnAccumulator) error {
	positions, colors, normals, intensities, classifications := pointsOf(n)
	if len(positions) == 0 {
		return nil
	}
	relPositions := attributeSourcePositions(n)
	tree := kdtree.Deserialize(relPositions, attributeSourceKdTree(n))
	centre := n.Cell.Centre()
	rel := [3]float32{
		float32(query[0] - centre[0]),
		float32(query[1] - centre[1]),
		float32(query[2] - centre[2]),
	}
	hits := tree.KNearest(rel, acc.radius, acc.k)
	for _, h := range hits {
		nb := Neighbour{Position: positions[h.Index], Distance: h.Distance}
		if len(colors) > h.Index {
			c := colors[h.Index]
			nb.Color = &c
		}
		if len(normals) > h.Index {
			nm := normals[h.Index]
			nb.Normal = &nm
		}
		if len(intensities) > h.Index {
			in := intensities[h.Index]
			nb.Intensity = &in
		}
		if len(classifications) > h.Index {
			cl := classifications[h.Index]
			nb.Classification = &cl
		}
		acc.add(nb)
	}
	return nil
}

// attributeSourcePositions returns the cell-relative positions backing
// whichever of Attrs/LodAttrs pointsOf would select, matching the
// coordinate space the stored KdTree blob was built over.
func attributeSourcePositions(n *node.Node) [][3]float32 {
	if n.Attrs.Len() > 0 {
		return n.Attrs.Positions
	}
	return n.LodAttrs.Positions
}

func attributeSourceKdTree(n *node.Node) []byte {
	if n.Attrs.Len() > 0 {
		return n.Attrs.KdTree
	}
	return n.LodAttrs.KdTree
}
