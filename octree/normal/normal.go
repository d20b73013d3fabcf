// Package normal implements the normal generator (C11): a bottom-up
// pass that fills in per-point normals wherever a node carries positions
// but none yet, using a pluggable, user-supplied estimator, per spec.md
// §4.10.
//
// Grounded on core/state/pruner/bloom.go's bottom-up sweep style and on
// context.Context-threaded cancellation used throughout the teacher's
// newer APIs (e.g. core/state/reader.go), generalized from "prune one
// state trie bottom-up" to "estimate normals one node at a time,
// bottom-up, checking for cancellation between nodes".
package normal

import (
	"context"
	"fmt"

	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store"
	"github.com/pointstream/pcidx/store/ref"
)

// Estimator computes a unit (or near-unit) normal for every position in
// positions, given in absolute coordinates. The result must have the
// same length as positions. Implementations typically fit a local plane
// over each point's k nearest neighbours; this package is agnostic to
// the method, per spec.md §4.10's "user-supplied estimator".
type Estimator func(ctx context.Context, positions [][3]float64) [][3]float32

// Generate runs the normal estimator over every node in n's subtree that
// carries positions but lacks normals, bottom-up, republishing each
// affected node under its original id (spec.md §4.10, §3 "Lifecycle").
// Nodes that already carry normals, or carry no positions at all, are
// passed through unchanged. ctx is checked between nodes so a long pass
// can be cancelled cleanly.
func Generate(ctx context.Context, s store.Store, n *node.Node, estimator Estimator, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if estimator == nil {
		return n, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved, err := node.Resolve(n)
	if err != nil {
		return nil, fmt.Errorf("octree/normal: resolve: %w", err)
	}

	out := node.NewWithID(resolved.ID, resolved.Cell)
	out.BBoxMin, out.BBoxMax = resolved.BBoxMin, resolved.BBoxMax
	out.PointCountTree = resolved.PointCountTree
	out.PointCountNode = resolved.PointCountNode
	out.Attrs = resolved.Attrs
	out.LodAttrs = resolved.LodAttrs

	changed := false
	if resolved.IsLeaf() {
		if !out.Attrs.HasNormals() && out.Attrs.Len() > 0 {
			out.Attrs.Normals = estimator(ctx, resolved.AbsolutePositions())
			changed = true
		}
	} else {
		for i := 0; i < 8; i++ {
			child, err := resolved.Child(i)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			newChild, err := Generate(ctx, s, child, estimator, loader)
			if err != nil {
				return nil, err
			}
			out.SetChild(i, newChild, loader)
		}
		if !out.LodAttrs.HasNormals() && out.LodAttrs.Len() > 0 {
			out.LodAttrs.Normals = estimator(ctx, resolved.AbsoluteLodPositions())
			changed = true
		}
	}

	if !changed && resolved.IsLeaf() {
		return resolved, nil
	}
	if _, err := node.Persist(s, out); err != nil {
		return nil, fmt.Errorf("octree/normal: persist %s: %w", out.ID, err)
	}
	return out, nil
}
