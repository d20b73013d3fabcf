package query

import (
	"github.com/pointstream/pcidx/octree/node"
)

// HalfSpace is the set of points p satisfying dot(Normal, p) <= D. A
// Hull is the intersection of its half-spaces, per spec.md §4.11's
// "inside convex hull" specialization.
type HalfSpace struct {
	Normal [3]float64
	D      float64
}

func (h HalfSpace) contains(p [3]float64) bool {
	return h.Normal[0]*p[0]+h.Normal[1]*p[1]+h.Normal[2]*p[2] <= h.D
}

// corners returns the box corner farthest in the direction of +Normal
// (pos: the largest dot(Normal, p), the one most likely to violate the
// half-space) and the one farthest in the direction of -Normal (neg: the
// smallest dot(Normal, p), the one most likely to satisfy it), per the
// standard AABB vs. half-space classification trick.
func (h HalfSpace) corners(bmin, bmax [3]float64) (pos, neg [3]float64) {
	for i := 0; i < 3; i++ {
		if h.Normal[i] >= 0 {
			pos[i], neg[i] = bmax[i], bmin[i]
		} else {
			pos[i], neg[i] = bmin[i], bmax[i]
		}
	}
	return pos, neg
}

type Hull []HalfSpace

// InsideHull matches points contained in every half-space of hull.
func InsideHull(hull Hull) Predicate {
	return Predicate{
		FullyOutside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			for _, h := range hull {
				_, neg := h.corners(bmin, bmax)
				if !h.contains(neg) {
					// Even the most-favourable corner violates this
					// half-space, so no point in the box can satisfy it.
					return true
				}
			}
			return false
		},
		FullyInside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			for _, h := range hull {
				pos, _ := h.corners(bmin, bmax)
				if !h.contains(pos) {
					return false
				}
			}
			return true
		},
		PointInside: func(p [3]float64) bool {
			for _, h := range hull {
				if !h.contains(p) {
					return false
				}
			}
			return true
		},
		MinExponent: minExponentFloor,
	}
}

// InsideBox builds a Hull from an axis-aligned box's 6 faces and
// returns its InsideHull predicate, per spec.md §4.11's "inside
// axis-aligned box" specialization.
func InsideBox(bmin, bmax [3]float64) Predicate {
	hull := Hull{
		{Normal: [3]float64{-1, 0, 0}, D: -bmin[0]},
		{Normal: [3]float64{1, 0, 0}, D: bmax[0]},
		{Normal: [3]float64{0, -1, 0}, D: -bmin[1]},
		{Normal: [3]float64{0, 1, 0}, D: bmax[1]},
		{Normal: [3]float64{0, 0, -1}, D: -bmin[2]},
		{Normal: [3]float64{0, 0, 1}, D: bmax[2]},
	}
	return InsideHull(hull)
}

// minExponentFloor is the sentinel MinExponent for predicates with no
// level-query floor: only true leaves act as the traversal floor.
const minExponentFloor = -1 << 30
