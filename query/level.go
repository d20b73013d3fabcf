package query

import (
	"context"
	"fmt"

	"github.com/pointstream/pcidx/octree/node"
)

// LevelResult is one node's contribution to a level query: its own LoD
// (or leaf) sample, plus the node's reported point count, which spec.md
// §4.11 documents as an overestimate when summed across a level
// (nodes whose descendants were pruned still report their full
// PointCountTree-derived total, not the sample size actually
// returned).
type LevelResult struct {
	Chunk      ResultChunk
	PointCount uint64
}

// AtLevel collects one ResultChunk per node at depth (root is depth 0)
// that exists in root's tree, using each node's LodAttrs (or, at a true
// leaf reached before depth, its direct Attrs), per spec.md §4.11's
// level-query specialization. Nodes deeper than the tree's actual
// height simply contribute nothing past their own leaf.
func AtLevel(ctx context.Context, root *node.Node, depth int) ([]LevelResult, error) {
	if root == nil || depth < 0 {
		return nil, nil
	}
	var out []LevelResult
	if err := levelDescend(ctx, root, depth, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func levelResultOf(n *node.Node) LevelResult {
	return LevelResult{Chunk: fullChunk(n), PointCount: n.PointCountTree}
}

func levelDescend(ctx context.Context, n *node.Node, depth int, out *[]LevelResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := node.Resolve(n)
	if err != nil {
		return fmt.Errorf("query: resolve: %w", err)
	}
	if depth == 0 || resolved.IsLeaf() {
		*out = append(*out, levelResultOf(resolved))
		return nil
	}
	for i := 0; i < 8; i++ {
		child, err := resolved.Child(i)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		if err := levelDescend(ctx, child, depth-1, out); err != nil {
			return err
		}
	}
	return nil
}
