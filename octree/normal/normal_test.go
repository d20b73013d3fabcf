package normal

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/octree/builder"
	"github.com/pointstream/pcidx/octree/lod"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store/memorydb"
)

func randChunk(seed int64, n int) *chunk.Chunk {
	rng := rand.New(rand.NewSource(seed))
	pts := make([][3]float64, n)
	for i := range pts {
		pts[i] = [3]float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	return &chunk.Chunk{Positions: pts}
}

// upEstimator is a trivial deterministic estimator: every point gets the
// +Z unit normal, enough to exercise the plumbing without real geometry.
func upEstimator(_ context.Context, positions [][3]float64) [][3]float32 {
	out := make([][3]float32, len(positions))
	for i := range out {
		out[i] = [3]float32{0, 0, 1}
	}
	return out
}

func TestGenerateNilEstimatorIsNoop(t *testing.T) {
	db := memorydb.New()
	loader := node.Loader(db)
	c := &chunk.Chunk{Positions: [][3]float64{{0, 0, 0}, {1, 0, 0}}}
	root, err := builder.Build(context.Background(), c, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Generate(context.Background(), db, root, nil, loader)
	if err != nil {
		t.Fatal(err)
	}
	if out != root {
		t.Fatal("expected nil estimator to return the input unchanged")
	}
}

func TestGenerateLeafFillsNormals(t *testing.T) {
	db := memorydb.New()
	loader := node.Loader(db)
	c := &chunk.Chunk{Positions: [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}}
	root, err := builder.Build(context.Background(), c, 100, loader)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Generate(context.Background(), db, root, upEstimator, loader)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Attrs.HasNormals() {
		t.Fatal("expected leaf to gain normals")
	}
	if len(out.Attrs.Normals) != 3 {
		t.Fatalf("expected 3 normals, got %d", len(out.Attrs.Normals))
	}
	for _, n := range out.Attrs.Normals {
		if n != [3]float32{0, 0, 1} {
			t.Fatalf("unexpected normal %v", n)
		}
	}
}

func TestGenerateFillsLodNormalsOnInnerNodes(t *testing.T) {
	db := memorydb.New()
	loader := node.Loader(db)
	c := randChunk(31, 3000)
	root, err := builder.Build(context.Background(), c, 40, loader)
	if err != nil {
		t.Fatal(err)
	}
	if root.IsLeaf() {
		t.Fatal("expected tree to split for this test to be meaningful")
	}
	withLod, err := lod.Generate(context.Background(), db, root, 40, loader)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Generate(context.Background(), db, withLod, upEstimator, loader)
	if err != nil {
		t.Fatal(err)
	}
	var walk func(n *node.Node)
	walk = func(n *node.Node) {
		if n.IsLeaf() {
			if !n.Attrs.HasNormals() {
				t.Fatal("expected leaf normals to be filled")
			}
			return
		}
		if n.LodAttrs.Len() > 0 && !n.LodAttrs.HasNormals() {
			t.Fatal("expected inner node LoD normals to be filled")
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
	walk(out)
}
