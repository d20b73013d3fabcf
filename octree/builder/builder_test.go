package builder

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store/memorydb"
)

func countTree(t *testing.T, n *node.Node) uint64 {
	t.Helper()
	if n.IsLeaf() {
		if uint64(n.PointCountNode) != n.PointCountTree {
			t.Fatalf("leaf count mismatch: node=%d tree=%d", n.PointCountNode, n.PointCountTree)
		}
		return n.PointCountTree
	}
	var sum uint64
	for i := 0; i < 8; i++ {
		child, err := n.Child(i)
		if err != nil {
			t.Fatal(err)
		}
		if child == nil {
			continue
		}
		sum += countTree(t, child)
	}
	if sum != n.PointCountTree {
		t.Fatalf("inner node count mismatch: children sum=%d tree=%d", sum, n.PointCountTree)
	}
	return n.PointCountTree
}

func TestTrivialBuild(t *testing.T) {
	// S1: three collinear points, split_limit=10.
	c := &chunk.Chunk{Positions: [][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}}
	db := memorydb.New()
	root, err := Build(context.Background(), c, 10, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	if !root.IsLeaf() {
		t.Fatal("expected a single leaf")
	}
	if root.PointCountTree != 3 {
		t.Fatalf("expected point count 3, got %d", root.PointCountTree)
	}
	if root.Attrs.HasNormals() {
		t.Fatal("expected no normals")
	}
	if root.BBoxMin != [3]float64{0, 0, 0} || root.BBoxMax != [3]float64{2, 0, 0} {
		t.Fatalf("unexpected bbox: min=%v max=%v", root.BBoxMin, root.BBoxMax)
	}
}

func TestEmptyChunk(t *testing.T) {
	c := &chunk.Chunk{}
	db := memorydb.New()
	root, err := Build(context.Background(), c, 10, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	if root.PointCountTree != 0 {
		t.Fatalf("expected empty tree, got count %d", root.PointCountTree)
	}
}

func TestSplitsWhenOverLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pts := make([][3]float64, 5000)
	for i := range pts {
		pts[i] = [3]float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	c := &chunk.Chunk{Positions: pts}
	db := memorydb.New()
	root, err := Build(context.Background(), c, 100, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	if root.IsLeaf() {
		t.Fatal("expected tree to split with 5000 points and split_limit=100")
	}
	if got := countTree(t, root); got != 5000 {
		t.Fatalf("expected 5000 total points, got %d", got)
	}
}

func TestEveryLeafWithinSplitLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	pts := make([][3]float64, 3000)
	for i := range pts {
		pts[i] = [3]float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	c := &chunk.Chunk{Positions: pts}
	db := memorydb.New()
	root, err := Build(context.Background(), c, 50, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	var walk func(n *node.Node)
	walk = func(n *node.Node) {
		if n.IsLeaf() {
			if n.PointCountNode > 50 {
				t.Fatalf("leaf exceeds split limit: %d", n.PointCountNode)
			}
			return
		}
		for i := 0; i < 8; i++ {
			child, err := n.Child(i)
			if err != nil {
				t.Fatal(err)
			}
			if child != nil {
				walk(child)
			}
		}
	}
	walk(root)
}
