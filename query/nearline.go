package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/pointstream/pcidx/kdtree"
	"github.com/pointstream/pcidx/octree/node"
)

// maxHitsPerLeaf bounds a single leaf's contribution to a near-line
// query, per spec.md §4.11's hard per-leaf cap for this query type.
const maxHitsPerLeaf = 1000

// NearLine finds points within radius of the line segment p0-p1, per
// spec.md §4.11's near-line/ray algorithm: clip the query segment
// against the root cell's box (two-sided slab clipping, so both finite
// segments and infinite rays degenerate to the same code path), then
// recurse only into children whose box the clipped segment still
// intersects, dispatching into each leaf's own k-d tree.
func NearLine(ctx context.Context, root *node.Node, p0, p1 [3]float64, radius float64) ([]Neighbour, error) {
	if root == nil {
		return nil, nil
	}
	var out []Neighbour
	if err := nearLineDescend(ctx, root, p0, p1, radius, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

func nearLineDescend(ctx context.Context, n *node.Node, p0, p1 [3]float64, radius float64, out *[]Neighbour) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := node.Resolve(n)
	if err != nil {
		return fmt.Errorf("query: resolve: %w", err)
	}
	bmin, bmax := boxOf(resolved)
	if !segmentIntersectsBox(p0, p1, radius, bmin, bmax) {
		return nil
	}
	if resolved.IsLeaf() {
		return nearLineLeaf(resolved, p0, p1, radius, out)
	}
	for i := 0; i < 8; i++ {
		child, err := resolved.Child(i)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		if err := nearLineDescend(ctx, child, p0, p1, radius, out); err != nil {
			return err
		}
	}
	return nil
}

// segmentIntersectsBox applies the slab method to the segment p0-p1,
// padded by radius on every axis, against the box [bmin, bmax]. A
// segment (rather than an infinite line) is clipped to t in [0, 1];
// both endpoints sharing the same padded bounds test covers the ray
// case too, since callers that want an infinite ray simply pass a very
// distant p1.
func segmentIntersectsBox(p0, p1 [3]float64, radius float64, bmin, bmax [3]float64) bool {
	tmin, tmax := 0.0, 1.0
	d := sub(p1, p0)
	for i := 0; i < 3; i++ {
		lo, hi := bmin[i]-radius, bmax[i]+radius
		if d[i] == 0 {
			if p0[i] < lo || p0[i] > hi {
				return false
			}
			continue
		}
		t0 := (lo - p0[i]) / d[i]
		t1 := (hi - p0[i]) / d[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}

func nearLineLeaf(n *node.Node, p0, p1 [3]float64, radius float64, out *[]Neighbour) error {
	positions, colors, normals, intensities, classifications := pointsOf(n)
	if len(positions) == 0 {
		return nil
	}
	relPositions := attributeSourcePositions(n)
	tree := kdtree.Deserialize(relPositions, attributeSourceKdTree(n))
	centre := n.Cell.Centre()
	rel0 := toRel(p0, centre)
	rel1 := toRel(p1, centre)
	hits := tree.NearLine(rel0, rel1, radius, maxHitsPerLeaf)
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
		*out = append(*out, nb)
	}
	return nil
}

func toRel(p, centre [3]float64) [3]float32 {
	return [3]float32{
		float32(p[0] - centre[0]),
		float32(p[1] - centre[1]),
		float32(p[2] - centre[2]),
	}
}
