package query

import (
	"math"

	"github.com/pointstream/pcidx/octree/node"
)

// Plane is an infinite plane in Hesse normal form: dot(Normal, p) ==
// Offset for points on the plane. Normal need not be unit length; all
// distance computations below divide by its magnitude.
type Plane struct {
	Normal [3]float64
	Offset float64
}

func (pl Plane) signedDistance(p [3]float64) float64 {
	n := pl.Normal
	num := n[0]*p[0] + n[1]*p[1] + n[2]*p[2] - pl.Offset
	return num / math.Sqrt(n[0]*n[0]+n[1]*n[1]+n[2]*n[2])
}

// slab computes the standard AABB-vs-plane overlap test: s is the
// signed distance of the box centre to the plane, r is the box's
// half-extent projected onto the plane normal. The box's signed
// distance to the plane ranges over [s-r, s+r].
func (pl Plane) slab(bmin, bmax [3]float64) (s, r float64) {
	n := pl.Normal
	mag := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	centre := [3]float64{(bmin[0] + bmax[0]) / 2, (bmin[1] + bmax[1]) / 2, (bmin[2] + bmax[2]) / 2}
	half := [3]float64{(bmax[0] - bmin[0]) / 2, (bmax[1] - bmin[1]) / 2, (bmax[2] - bmin[2]) / 2}
	s = (n[0]*centre[0] + n[1]*centre[1] + n[2]*centre[2] - pl.Offset) / mag
	r = (math.Abs(n[0])*half[0] + math.Abs(n[1])*half[1] + math.Abs(n[2])*half[2]) / mag
	return s, r
}

// NearPlane matches points within distance tol of pl, per spec.md
// §4.11's "near plane" specialization.
func NearPlane(pl Plane, tol float64) Predicate {
	return Predicate{
		FullyOutside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			s, r := pl.slab(bmin, bmax)
			return math.Abs(s) > tol+r
		},
		FullyInside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			s, r := pl.slab(bmin, bmax)
			return math.Abs(s)+r <= tol
		},
		PointInside: func(p [3]float64) bool {
			return math.Abs(pl.signedDistance(p)) <= tol
		},
		MinExponent: minExponentFloor,
	}
}

// NotNearPlane matches points farther than tol from pl -- the
// complement of NearPlane, per spec.md §4.11's "not near plane"
// specialization and invariant 7's "complementary predicates partition
// the tree" requirement.
func NotNearPlane(pl Plane, tol float64) Predicate {
	return Predicate{
		FullyOutside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			s, r := pl.slab(bmin, bmax)
			return math.Abs(s)+r <= tol
		},
		FullyInside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			s, r := pl.slab(bmin, bmax)
			return math.Abs(s) > tol+r
		},
		PointInside: func(p [3]float64) bool {
			return math.Abs(pl.signedDistance(p)) > tol
		},
		MinExponent: minExponentFloor,
	}
}

// NearAnyPlanes matches points within tol of at least one of planes.
func NearAnyPlanes(planes []Plane, tol float64) Predicate {
	return Predicate{
		FullyOutside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			for _, pl := range planes {
				s, r := pl.slab(bmin, bmax)
				if math.Abs(s) <= tol+r {
					return false
				}
			}
			return true
		},
		FullyInside: func(n *node.Node) bool {
			bmin, bmax := boxOf(n)
			for _, pl := range planes {
				s, r := pl.slab(bmin, bmax)
				if math.Abs(s)+r <= tol {
					return true
				}
			}
			return false
		},
		PointInside: func(p [3]float64) bool {
			for _, pl := range planes {
				if math.Abs(pl.signedDistance(p)) <= tol {
					return true
				}
			}
			return false
		},
		MinExponent: minExponentFloor,
	}
}
