package query

import (
	"math"

	"github.com/pointstream/pcidx/octree/node"
)

// Polygon is a planar polygon in 3D, given as an ordered ring of
// vertices, with a matching tolerance for the "near polygon"
// specialization (spec.md §4.11): a point matches if it lies within
// Tolerance of the polygon's surface (its plane, clipped to the ring).
type Polygon struct {
	Vertices  [][3]float64
	Tolerance float64
}

func (poly Polygon) plane() Plane {
	// Use the first three vertices to define the supporting plane; a
	// well-formed planar ring makes any such triple equivalent.
	v := poly.Vertices
	n := cross(sub(v[1], v[0]), sub(v[2], v[0]))
	return Plane{Normal: n, Offset: dot(n, v[0])}
}

// paddedBounds returns the polygon's axis-aligned bounding box, padded by
// Tolerance on every side.
func (poly Polygon) paddedBounds() (bmin, bmax [3]float64) {
	bmin, bmax = poly.Vertices[0], poly.Vertices[0]
	for _, v := range poly.Vertices[1:] {
		for i := 0; i < 3; i++ {
			if v[i] < bmin[i] {
				bmin[i] = v[i]
			}
			if v[i] > bmax[i] {
				bmax[i] = v[i]
			}
		}
	}
	t := poly.Tolerance
	for i := 0; i < 3; i++ {
		bmin[i] -= t
		bmax[i] += t
	}
	return bmin, bmax
}

// distanceToRing returns the 3D distance from p to the nearest edge of
// the ring, which is p's distance to the polygon whenever p's projection
// onto the plane falls outside the ring.
func (poly Polygon) distanceToRing(p [3]float64) float64 {
	best := math.Inf(1)
	v := poly.Vertices
	for i := range v {
		a := v[i]
		b := v[(i+1)%len(v)]
		d := math.Sqrt(distToSegment2(p, a, b))
		if d < best {
			best = d
		}
	}
	return best
}

func distToSegment2(p, a, b [3]float64) float64 {
	ab := sub(b, a)
	ap := sub(p, a)
	ab2 := dot(ab, ab)
	if ab2 == 0 {
		return dot(ap, ap)
	}
	t := dot(ap, ab) / ab2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	c := [3]float64{a[0] + t*ab[0], a[1] + t*ab[1], a[2] + t*ab[2]}
	d := sub(p, c)
	return dot(d, d)
}

// pointInsideRing is a coarse "is p (on-plane) within the ring" test
// used only to decide whether to measure against the ring's interior
// (distance 0) or its boundary edges; it casts a ray along the
// dominant in-plane axis and counts crossings (standard even-odd rule,
// projected to the plane's best-fit 2D axes).
func (poly Polygon) pointInsideRing(p [3]float64, planeNormal [3]float64) bool {
	// Pick the two axes with the least contribution from the normal to
	// project onto, avoiding degenerate projections.
	ax, ay := 0, 1
	absN := [3]float64{math.Abs(planeNormal[0]), math.Abs(planeNormal[1]), math.Abs(planeNormal[2])}
	switch {
	case absN[0] >= absN[1] && absN[0] >= absN[2]:
		ax, ay = 1, 2
	case absN[1] >= absN[0] && absN[1] >= absN[2]:
		ax, ay = 0, 2
	default:
		ax, ay = 0, 1
	}
	v := poly.Vertices
	inside := false
	px, py := p[ax], p[ay]
	for i, j := 0, len(v)-1; i < len(v); j, i = i, i+1 {
		xi, yi := v[i][ax], v[i][ay]
		xj, yj := v[j][ax], v[j][ay]
		if (yi > py) != (yj > py) &&
			px < (xj-xi)*(py-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// NearPolygon matches points within poly.Tolerance of poly's surface.
func NearPolygon(poly Polygon) Predicate {
	pl := poly.plane()
	bmin, bmax := poly.paddedBounds()
	dist := func(p [3]float64) float64 {
		proj := projectToPlane(p, pl)
		if poly.pointInsideRing(proj, pl.Normal) {
			return math.Abs(pl.signedDistance(p))
		}
		return poly.distanceToRing(p)
	}
	return Predicate{
		FullyOutside: func(n *node.Node) bool {
			return !cellIntersectsBox(n.Cell, bmin, bmax)
		},
		FullyInside: func(n *node.Node) bool {
			// A polygon is a measure-zero surface: no nondegenerate box
			// can be fully inside the near-polygon region, so this
			// specialization always falls through to point-level
			// filtering once past the bounding-box prune above.
			return false
		},
		PointInside: func(p [3]float64) bool {
			return dist(p) <= poly.Tolerance
		},
		MinExponent: minExponentFloor,
	}
}

func projectToPlane(p [3]float64, pl Plane) [3]float64 {
	d := pl.signedDistance(p)
	n := pl.Normal
	mag := math.Sqrt(dot(n, n))
	unit := [3]float64{n[0] / mag, n[1] / mag, n[2] / mag}
	return [3]float64{p[0] - d*unit[0], p[1] - d*unit[1], p[2] - d*unit[2]}
}
