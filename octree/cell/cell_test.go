package cell

import "testing"

func TestChildContainedInParent(t *testing.T) {
	c := New(3, -2, 5, 4)
	for i := 0; i < 8; i++ {
		child := c.Child(i)
		cmin, cmax := child.Min(), child.Max()
		if !c.ContainsBox(cmin, cmax) {
			t.Fatalf("child %d of %v not contained in parent: %v", i, c, child)
		}
	}
}

func TestChildrenTileParent(t *testing.T) {
	c := New(0, 0, 0, 3)
	vol := 0.0
	side := c.Child(0).Side()
	childVol := side * side * side
	for i := 0; i < 8; i++ {
		vol += childVol
	}
	parentSide := c.Side()
	parentVol := parentSide * parentSide * parentSide
	if vol != parentVol {
		t.Fatalf("children volume %v != parent volume %v", vol, parentVol)
	}
}

func TestParentChildRoundTrip(t *testing.T) {
	c := New(5, -3, 2, 2)
	for i := 0; i < 8; i++ {
		child := c.Child(i)
		if child.Parent() != c {
			t.Fatalf("child(%d).Parent() = %v, want %v", i, child.Parent(), c)
		}
	}
}

func TestSubIndexMatchesChild(t *testing.T) {
	c := New(0, 0, 0, 4)
	for i := 0; i < 8; i++ {
		child := c.Child(i)
		// Use the child's own centre, which lies strictly inside that
		// child, as a representative point certain to land in it.
		p := child.Centre()
		if got := c.SubIndex(p); got != i {
			t.Fatalf("SubIndex(%v) = %d, want %d", p, got, i)
		}
	}
}

func TestSmallestEnclosingContainsBox(t *testing.T) {
	bmin := [3]float64{0.1, 0.2, 0.3}
	bmax := [3]float64{9.9, 5.5, 2.2}
	c := SmallestEnclosing(bmin, bmax)
	if !c.ContainsBox(bmin, bmax) {
		t.Fatalf("SmallestEnclosing(%v, %v) = %v does not contain the box", bmin, bmax, c)
	}
}

func TestSmallestEnclosingStraddlingOrigin(t *testing.T) {
	bmin := [3]float64{-2, -2, -2}
	bmax := [3]float64{2, 2, 2}
	c := SmallestEnclosing(bmin, bmax)
	if !c.IsCentered() {
		t.Fatalf("expected centered cell for origin-straddling box, got %v", c)
	}
	if !c.ContainsBox(bmin, bmax) {
		t.Fatalf("centered cell %v does not contain box", c)
	}
}

func TestCommonAncestorContainsBoth(t *testing.T) {
	a := New(0, 0, 0, 2)
	b := New(10, 10, 10, 2)
	anc := CommonAncestor(a, b)
	amin, amax := a.Min(), a.Max()
	bmin, bmax := b.Min(), b.Max()
	if !anc.ContainsBox(amin, amax) || !anc.ContainsBox(bmin, bmax) {
		t.Fatalf("CommonAncestor(%v, %v) = %v does not contain both", a, b, anc)
	}
}

func TestCommonAncestorSameCell(t *testing.T) {
	a := New(1, 2, 3, 1)
	if got := CommonAncestor(a, a); got != a {
		t.Fatalf("CommonAncestor(a, a) = %v, want %v", got, a)
	}
}
