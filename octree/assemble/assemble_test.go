package assemble

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
	r, err := node.Resolve(n)
	if err != nil {
		t.Fatal(err)
	}
	if r.IsLeaf() {
		return r.PointCountTree
	}
	var sum uint64
	for i := 0; i < 8; i++ {
		child, err := r.Child(i)
		if err != nil {
			t.Fatal(err)
		}
		if child != nil {
			sum += countTree(t, child)
		}
	}
	return sum
}

func randChunk(seed int64, n int, cx, cy, cz float64) *chunk.Chunk {
	rng := rand.New(rand.NewSource(seed))
	pts := make([][3]float64, n)
	for i := range pts {
		pts[i] = [3]float64{cx + rng.Float64(), cy + rng.Float64(), cz + rng.Float64()}
	}
	return &chunk.Chunk{Positions: pts}
}

func TestAssembleEmptyInput(t *testing.T) {
	db := memorydb.New()
	root, err := Assemble(context.Background(), nil, Options{SplitLimit: 100}, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	if root.PointCountTree != 0 {
		t.Fatalf("expected empty tree, got %d points", root.PointCountTree)
	}
}

func TestAssembleSingleChunk(t *testing.T) {
	db := memorydb.New()
	chunks := []*chunk.Chunk{randChunk(1, 200, 0, 0, 0)}
	root, err := Assemble(context.Background(), chunks, Options{SplitLimit: 50}, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	if got := countTree(t, root); got != 200 {
		t.Fatalf("expected 200 points, got %d", got)
	}
}

func TestAssembleManyChunksTracksProgress(t *testing.T) {
	db := memorydb.New()
	var chunks []*chunk.Chunk
	for i := 0; i < 9; i++ {
		chunks = append(chunks, randChunk(int64(i+1), 100, float64(i), 0, 0))
	}
	var reported []float64
	opts := Options{
		SplitLimit:  40,
		Parallelism: 3,
		Progress:    func(p float64) { reported = append(reported, p) },
	}
	root, err := Assemble(context.Background(), chunks, opts, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	if got := countTree(t, root); got != 900 {
		t.Fatalf("expected 900 points, got %d", got)
	}
	if len(reported) == 0 {
		t.Fatal("expected at least one progress report")
	}
	last := reported[len(reported)-1]
	if last != 1.0 {
		t.Fatalf("expected final progress 1.0, got %v", last)
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] < reported[i-1] {
			t.Fatalf("progress regressed: %v then %v", reported[i-1], reported[i])
		}
	}
}

func TestAssembleDeduplicatesIdenticalChunks(t *testing.T) {
	db := memorydb.New()
	c := randChunk(7, 50, 0, 0, 0)
	pipeline := chunk.NewPipeline(nil, 0, true)
	opts := Options{SplitLimit: 100, Pipeline: pipeline}
	root, err := Assemble(context.Background(), []*chunk.Chunk{c, c, c}, opts, node.Loader(db))
	if err != nil {
		t.Fatal(err)
	}
	if got := countTree(t, root); got != 50 {
		t.Fatalf("expected dedup to keep only 50 points, got %d", got)
	}
}
