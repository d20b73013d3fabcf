package node

import (
	"testing"

	"github.com/pointstream/pcidx/octree/cell"
	"github.com/pointstream/pcidx/store/memorydb"
	"github.com/pointstream/pcidx/store/ref"
)

func TestPersistLoadRoundTrip(t *testing.T) {
	db := memorydb.New()
	c := cell.New(0, 0, 0, 4)
	n := New(c)
	n.Attrs.Positions = [][3]float32{{1, 2, 3}, {4, 5, 6}}
	n.Attrs.Colors = [][4]uint8{{255, 0, 0, 255}, {0, 255, 0, 255}}
	n.Attrs.Intensities = []int32{10, 20}
	n.PointCountNode = 2
	n.PointCountTree = 2
	n.BBoxMin = [3]float64{1, 2, 3}
	n.BBoxMax = [3]float64{4, 5, 6}

	id, err := Persist(db, n)
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(db, id)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.PointCountNode != 2 || len(reloaded.Attrs.Positions) != 2 {
		t.Fatalf("unexpected reloaded node: %+v", reloaded)
	}
	if reloaded.Attrs.Positions[1] != n.Attrs.Positions[1] {
		t.Fatalf("position mismatch: got %v want %v", reloaded.Attrs.Positions[1], n.Attrs.Positions[1])
	}
	if !reloaded.Attrs.HasColors() || reloaded.Attrs.Colors[0] != n.Attrs.Colors[0] {
		t.Fatalf("color mismatch: %+v", reloaded.Attrs.Colors)
	}
}

func TestIsLeaf(t *testing.T) {
	c := cell.New(0, 0, 0, 4)
	n := New(c)
	if !n.IsLeaf() {
		t.Fatal("fresh node with no children should be a leaf")
	}
	child := New(c.Child(0))
	n.SetChild(0, child, Loader(memorydb.New()))
	if n.IsLeaf() {
		t.Fatal("node with a child should not be a leaf")
	}
}

func TestLinkedNodeResolve(t *testing.T) {
	db := memorydb.New()
	c := cell.New(0, 0, 0, 3)
	real := New(c)
	real.Attrs.Positions = [][3]float32{{0, 0, 0}}
	real.PointCountNode = 1
	real.PointCountTree = 1
	if _, err := Persist(db, real); err != nil {
		t.Fatal(err)
	}

	parentCell := c.Parent()
	linked := NewLinked("linked-id", ref.New(real.ID, Loader(db)), parentCell)
	if _, err := Persist(db, linked); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(db, "linked-id")
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := Resolve(loaded)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != real.ID {
		t.Fatalf("resolved to %s, want %s", resolved.ID, real.ID)
	}
}
