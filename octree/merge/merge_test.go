package merge

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/octree/builder"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store/memorydb"
)

func countTree(t *testing.T, n *node.Node) uint64 {
	t.Helper()
	resolved, err := node.Resolve(n)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.IsLeaf() {
		return resolved.PointCountTree
	}
	var sum uint64
	for i := 0; i < 8; i++ {
		child, err := resolved.Child(i)
		if err != nil {
			t.Fatal(err)
		}
		if child == nil {
			continue
		}
		sum += countTree(t, child)
	}
	if sum != resolved.PointCountTree {
		t.Fatalf("child sum %d != tree count %d", sum, resolved.PointCountTree)
	}
	return resolved.PointCountTree
}

func randChunk(seed int64, n int, cx, cy, cz float64) *chunk.Chunk {
	rng := rand.New(rand.NewSource(seed))
	pts := make([][3]float64, n)
	for i := range pts {
		pts[i] = [3]float64{cx + rng.Float64(), cy + rng.Float64(), cz + rng.Float64()}
	}
	return &chunk.Chunk{Positions: pts}
}

func TestMergeTwoLeavesNestedCells(t *testing.T) {
	db := memorydb.New()
	loader := node.Loader(db)
	ca := &chunk.Chunk{Positions: [][3]float64{{0, 0, 0}, {0.1, 0, 0}}}
	cb := &chunk.Chunk{Positions: [][3]float64{{0.2, 0, 0}, {0.3, 0, 0}}}
	a, err := builder.Build(context.Background(), ca, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := builder.Build(context.Background(), cb, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	merged, err := Merge(context.Background(), a, b, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	if got := countTree(t, merged); got != 4 {
		t.Fatalf("expected 4 points, got %d", got)
	}
}

func TestMergeDisjointRegionsKeepsAllPoints(t *testing.T) {
	db := memorydb.New()
	loader := node.Loader(db)
	ca := randChunk(1, 50, 0, 0, 0)
	cb := randChunk(2, 50, 100, 0, 0)
	a, err := builder.Build(context.Background(), ca, 20, loader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := builder.Build(context.Background(), cb, 20, loader)
	if err != nil {
		t.Fatal(err)
	}
	merged, err := Merge(context.Background(), a, b, 20, loader)
	if err != nil {
		t.Fatal(err)
	}
	if got := countTree(t, merged); got != 100 {
		t.Fatalf("expected 100 points, got %d", got)
	}
}

func TestMergeOneEmptyReturnsOther(t *testing.T) {
	db := memorydb.New()
	loader := node.Loader(db)
	ca := randChunk(3, 10, 0, 0, 0)
	a, err := builder.Build(context.Background(), ca, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	empty, err := builder.Build(context.Background(), &chunk.Chunk{}, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	merged, err := Merge(context.Background(), a, empty, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	if got := countTree(t, merged); got != 10 {
		t.Fatalf("expected 10 points, got %d", got)
	}
}

func TestMergeLargeSetsStaysConsistent(t *testing.T) {
	db := memorydb.New()
	loader := node.Loader(db)
	ca := randChunk(4, 3000, 0, 0, 0)
	cb := randChunk(5, 3000, 0.5, 0.5, 0.5)
	a, err := builder.Build(context.Background(), ca, 64, loader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := builder.Build(context.Background(), cb, 64, loader)
	if err != nil {
		t.Fatal(err)
	}
	merged, err := Merge(context.Background(), a, b, 64, loader)
	if err != nil {
		t.Fatal(err)
	}
	if got := countTree(t, merged); got != 6000 {
		t.Fatalf("expected 6000 points, got %d", got)
	}
}
