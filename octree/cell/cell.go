// Package cell implements the integer-exponent axis-aligned cubic cells
// that tile the octree grid (C3), per spec.md §3-4.3. Cells are the unit
// of identity the rest of the tree is organized around: every Node
// carries exactly one Cell, and the Merge engine's "align to a common
// enclosing cell" step is built on the operations in this package.
package cell

import "math"

// Cell is an axis-aligned cube with side length 2^E, whose minimum corner
// sits at (X, Y, Z) * 2^E -- except for the centered variant (see
// Centered), which straddles the origin.
//
// Two cells are equal iff their fields are equal; there is no normalized
// form beyond what callers construct, matching spec.md's "integer
// coordinates (x, y, z, e)" identity.
type Cell struct {
	X, Y, Z int64
	E       int32

	// centered marks the special per-axis-combination cell that spans
	// [-2^(e-1), +2^(e-1)] on every axis, used to contain bounding boxes
	// that straddle the origin (spec.md §3). When centered is true,
	// X/Y/Z are ignored for geometry purposes (always zero by
	// convention) and Centre() returns the origin.
	centered bool
}

// New constructs a regular (non-centered) cell at exponent e with minimum
// corner index (x, y, z).
func New(x, y, z int64, e int32) Cell {
	return Cell{X: x, Y: y, Z: z, E: e}
}

// Centered constructs the origin-straddling cell at exponent e.
func Centered(e int32) Cell {
	return Cell{E: e, centered: true}
}

// IsCentered reports whether c is the origin-straddling variant.
func (c Cell) IsCentered() bool { return c.centered }

// Side returns the cell's side length, 2^E.
func (c Cell) Side() float64 {
	return math.Ldexp(1, int(c.E))
}

// Min returns the cell's minimum corner in absolute coordinates.
func (c Cell) Min() [3]float64 {
	if c.centered {
		h := c.Side() / 2
		return [3]float64{-h, -h, -h}
	}
	s := c.Side()
	return [3]float64{float64(c.X) * s, float64(c.Y) * s, float64(c.Z) * s}
}

// Max returns the cell's maximum corner in absolute coordinates.
func (c Cell) Max() [3]float64 {
	min := c.Min()
	s := c.Side()
	return [3]float64{min[0] + s, min[1] + s, min[2] + s}
}

// Centre returns the cell's geometric centre in absolute coordinates.
func (c Cell) Centre() [3]float64 {
	if c.centered {
		return [3]float64{0, 0, 0}
	}
	min, max := c.Min(), c.Max()
	return [3]float64{
		(min[0] + max[0]) / 2,
		(min[1] + max[1]) / 2,
		(min[2] + max[2]) / 2,
	}
}

// Contains reports whether point p lies within the closed cube [min, max].
func (c Cell) Contains(p [3]float64) bool {
	min, max := c.Min(), c.Max()
	for i := 0; i < 3; i++ {
		if p[i] < min[i] || p[i] > max[i] {
			return false
		}
	}
	return true
}

// ContainsBox reports whether c fully contains the axis-aligned box
// [bmin, bmax].
func (c Cell) ContainsBox(bmin, bmax [3]float64) bool {
	min, max := c.Min(), c.Max()
	for i := 0; i < 3; i++ {
		if bmin[i] < min[i] || bmax[i] > max[i] {
			return false
		}
	}
	return true
}

// IntersectsBox reports whether c overlaps the axis-aligned box
// [bmin, bmax] (touching faces count as intersecting).
func (c Cell) IntersectsBox(bmin, bmax [3]float64) bool {
	min, max := c.Min(), c.Max()
	for i := 0; i < 3; i++ {
		if bmax[i] < min[i] || bmin[i] > max[i] {
			return false
		}
	}
	return true
}

// SubIndex returns which of the 8 child octants point p falls into,
// using x+2y+4z against the cell's centre, per spec.md §4.3.
func (c Cell) SubIndex(p [3]float64) int {
	centre := c.Centre()
	idx := 0
	if p[0] >= centre[0] {
		idx |= 1
	}
	if p[1] >= centre[1] {
		idx |= 2
	}
	if p[2] >= centre[2] {
		idx |= 4
	}
	return idx
}

// Child returns the i-th child cell (i in 0..7, per the x+2y+4z
// convention) at exponent E-1.
func (c Cell) Child(i int) Cell {
	e := c.E - 1
	if c.centered {
		// The children of a centered cell are the 8 ordinary
		// quadrant cells of the same exponent, one per octant sign
		// combination, each occupying index 0 or -1 along each axis.
		x, y, z := int64(0), int64(0), int64(0)
		if i&1 == 0 {
			x = -1
		}
		if i&2 == 0 {
			y = -1
		}
		if i&4 == 0 {
			z = -1
		}
		return New(x, y, z, e)
	}
	x := c.X * 2
	y := c.Y * 2
	z := c.Z * 2
	if i&1 != 0 {
		x++
	}
	if i&2 != 0 {
		y++
	}
	if i&4 != 0 {
		z++
	}
	return New(x, y, z, e)
}

// Parent returns the cell's parent at exponent E+1.
func (c Cell) Parent() Cell {
	if c.centered {
		return Centered(c.E + 1)
	}
	return New(floorDiv(c.X, 2), floorDiv(c.Y, 2), floorDiv(c.Z, 2), c.E+1)
}

// IndexInParent returns which of the 8 child slots of c.Parent() is
// occupied by c, for a non-centered c whose parent is also non-centered
// (the common case during Merge's alignment/lift step, spec.md §4.8).
func (c Cell) IndexInParent() int {
	p := c.Parent()
	idx := 0
	if c.X-p.X*2 != 0 {
		idx |= 1
	}
	if c.Y-p.Y*2 != 0 {
		idx |= 2
	}
	if c.Z-p.Z*2 != 0 {
		idx |= 4
	}
	return idx
}

// IndexInCenteredParent returns which of the 8 child slots of
// Centered(c.E+1) is occupied by c, for a non-centered c whose
// coordinates are exactly 0 or -1 on every axis (the only cells that can
// sit directly under a centered parent, per spec.md §3's centered-cell
// edge case).
func IndexInCenteredParent(c Cell) int {
	idx := 0
	if c.X == 0 {
		idx |= 1
	}
	if c.Y == 0 {
		idx |= 2
	}
	if c.Z == 0 {
		idx |= 4
	}
	return idx
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// SmallestEnclosing returns the smallest regular cell that contains the
// axis-aligned box [bmin, bmax]; the exponent search starts at
// ceil(log2(extent)) and so is negative for boxes smaller than a unit
// cell. If the box straddles
// the origin on every axis it would need, the centered variant is used
// instead, matching spec.md §4.3's edge case.
func SmallestEnclosing(bmin, bmax [3]float64) Cell {
	if bmin == bmax {
		// Degenerate (single point): pad the box by 1e-9 so the search
		// starts from a small finite exponent and grows.
		bmax = [3]float64{bmin[0] + 1e-9, bmin[1] + 1e-9, bmin[2] + 1e-9}
	}
	straddles := true
	for i := 0; i < 3; i++ {
		if bmin[i] >= 0 || bmax[i] <= 0 {
			straddles = false
			break
		}
	}
	// Find the minimal exponent whose side covers the box extent.
	extent := 0.0
	for i := 0; i < 3; i++ {
		if d := bmax[i] - bmin[i]; d > extent {
			extent = d
		}
	}
	e := int32(math.Ceil(math.Log2(math.Max(extent, 1e-12))))
	if straddles {
		for {
			c := Centered(e)
			if c.ContainsBox(bmin, bmax) {
				return c
			}
			e++
		}
	}
	for {
		side := math.Ldexp(1, int(e))
		x := int64(math.Floor(bmin[0] / side))
		y := int64(math.Floor(bmin[1] / side))
		z := int64(math.Floor(bmin[2] / side))
		c := New(x, y, z, e)
		if c.ContainsBox(bmin, bmax) {
			return c
		}
		e++
	}
}

// CommonAncestor returns the smallest cell containing both a and b,
// needed by the Merge engine's alignment step (spec.md §4.3, §4.8). If
// either cell is centered, the result is the smaller centered cell of
// sufficient exponent, per the documented edge case.
func CommonAncestor(a, b Cell) Cell {
	if a == b {
		return a
	}
	if a.centered || b.centered {
		e := a.E
		if b.E > e {
			e = b.E
		}
		for {
			c := Centered(e)
			amin, amax := a.Min(), a.Max()
			bmin, bmax := b.Min(), b.Max()
			if c.ContainsBox(amin, amax) && c.ContainsBox(bmin, bmax) {
				return c
			}
			e++
		}
	}
	amin, amax := a.Min(), a.Max()
	bmin, bmax := b.Min(), b.Max()
	bmin2 := [3]float64{math.Min(amin[0], bmin[0]), math.Min(amin[1], bmin[1]), math.Min(amin[2], bmin[2])}
	bmax2 := [3]float64{math.Max(amax[0], bmax[0]), math.Max(amax[1], bmax[1]), math.Max(amax[2], bmax[2])}
	return SmallestEnclosing(bmin2, bmax2)
}
