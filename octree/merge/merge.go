// Package merge implements the octree merge engine (C9): combining two
// independently built trees into one, aligning their root cells and then
// descending octant-by-octant, per spec.md §4.8.
//
// The shape follows the teacher's layer-flattening idiom
// (triedb/pathdb/disklayer.go's persist, which folds a diff layer down
// into the disk layer node-by-node) generalized from "flatten one layer
// into the layer below" to "fold two peer subtrees into one", plus the
// tagged-union LinkedNode forwarding resolved the same way
// trie/committer.go resolves hash-only embedded nodes before recursing.
package merge

import (
	"context"
	"fmt"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/octree"
	"github.com/pointstream/pcidx/octree/builder"
	"github.com/pointstream/pcidx/octree/cell"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store/ref"
)

// Merge combines trees a and b into one, per spec.md §4.8. The result is
// rooted at the smallest cell enclosing both inputs; callers that need
// the merged tree published under a specific pre-existing id should wrap
// the result in a LinkedNode themselves (spec.md §4.8 step 1's
// forwarding-pointer republish is the caller's responsibility, since
// only the caller knows which of a's or b's id, if either, should keep
// resolving to it).
//
// Merge returns octree.ErrInvariant if the combined tree would carry
// zero points despite both inputs being non-empty, which would indicate
// a structural bug in the align/lift step rather than a legitimate
// empty result.
func Merge(ctx context.Context, a, b *node.Node, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ra, err := node.Resolve(a)
	if err != nil {
		return nil, fmt.Errorf("octree/merge: resolve a: %w", err)
	}
	rb, err := node.Resolve(b)
	if err != nil {
		return nil, fmt.Errorf("octree/merge: resolve b: %w", err)
	}
	if ra.PointCountTree == 0 {
		return rb, nil
	}
	if rb.PointCountTree == 0 {
		return ra, nil
	}

	common := cell.CommonAncestor(ra.Cell, rb.Cell)
	liftedA, err := liftTo(ctx, ra, common, splitLimit, loader)
	if err != nil {
		return nil, fmt.Errorf("octree/merge: lift a: %w", err)
	}
	liftedB, err := liftTo(ctx, rb, common, splitLimit, loader)
	if err != nil {
		return nil, fmt.Errorf("octree/merge: lift b: %w", err)
	}

	merged, err := mergeSameCell(ctx, liftedA, liftedB, splitLimit, loader)
	if err != nil {
		return nil, err
	}
	if merged.PointCountTree == 0 {
		return nil, octree.ErrInvariant
	}
	return merged, nil
}

// liftTo wraps n in synthetic inner nodes until it sits at exactly
// target, climbing one level at a time (spec.md §4.8 step 1). Each
// synthetic wrapper has a single populated child slot, computed from the
// geometric relationship between the current cell and its parent.
//
// The one case that cannot be expressed as a single-slot wrap is
// climbing from a centered cell into a larger centered cell: the
// smaller centered cell straddles the origin and so overlaps all 8
// octants of the larger one simultaneously, not just one slot. That
// case falls through to a full rebuild over the collected points
// instead of a wrap (see rebuildInCell).
func liftTo(ctx context.Context, n *node.Node, target cell.Cell, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	cur := n
	for cur.Cell != target {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cur.Cell.IsCentered() && target.IsCentered() {
			return rebuildInCell(ctx, cur, target, splitLimit, loader)
		}
		var parentCell cell.Cell
		var idx int
		if !cur.Cell.IsCentered() && target.IsCentered() && cur.Cell.E+1 == target.E {
			parentCell = target
			idx = cell.IndexInCenteredParent(cur.Cell)
		} else {
			parentCell = cur.Cell.Parent()
			idx = cur.Cell.IndexInParent()
		}
		wrapper := node.New(parentCell)
		wrapper.SetChild(idx, cur, loader)
		wrapper.PointCountTree = cur.PointCountTree
		wrapper.BBoxMin, wrapper.BBoxMax = cur.BBoxMin, cur.BBoxMax
		cur = wrapper
	}
	return cur, nil
}

// rebuildInCell collects every point in n's subtree and rebuilds fresh,
// directly inside target.
func rebuildInCell(ctx context.Context, n *node.Node, target cell.Cell, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	c, err := collectChunk(n)
	if err != nil {
		return nil, err
	}
	return builder.BuildInCell(ctx, c, target, splitLimit, loader)
}

// mergeSameCell folds a and b, which share exactly one cell, into a
// single node (spec.md §4.8 steps 3-5).
func mergeSameCell(ctx context.Context, a, b *node.Node, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ra, err := node.Resolve(a)
	if err != nil {
		return nil, err
	}
	rb, err := node.Resolve(b)
	if err != nil {
		return nil, err
	}
	if ra.PointCountTree == 0 {
		return rb, nil
	}
	if rb.PointCountTree == 0 {
		return ra, nil
	}

	switch {
	case ra.IsLeaf() && rb.IsLeaf():
		return mergeLeaves(ctx, ra, rb, splitLimit, loader)
	case ra.IsLeaf():
		return insertLeafIntoInner(ctx, ra, rb, splitLimit, loader)
	case rb.IsLeaf():
		return insertLeafIntoInner(ctx, rb, ra, splitLimit, loader)
	default:
		return mergeInner(ctx, ra, rb, splitLimit, loader)
	}
}

// mergeLeaves concatenates two leaves' points and re-splits over their
// shared cell, which may or may not still fit within a single leaf
// (spec.md §4.8 step 3).
func mergeLeaves(ctx context.Context, a, b *node.Node, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	merged := concatChunks(leafChunk(a), leafChunk(b))
	return builder.BuildInCell(ctx, merged, a.Cell, splitLimit, loader)
}

// insertLeafIntoInner re-inserts a leaf's points into an existing inner
// node by descent: points are bucketed by octant, each bucket is built
// fresh inside that octant's cell, and any resulting collision with an
// existing child is resolved by a further mergeSameCell recursion
// (spec.md §4.8 step 4).
func insertLeafIntoInner(ctx context.Context, leaf, inner *node.Node, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := leafChunk(leaf)
	buckets := make([][]int, 8)
	for i, p := range src.Positions {
		sub := inner.Cell.SubIndex(p)
		buckets[sub] = append(buckets[sub], i)
	}

	out := node.NewWithID(inner.ID, inner.Cell)
	var total uint64
	for i := 0; i < 8; i++ {
		existing, err := inner.Child(i)
		if err != nil {
			return nil, err
		}
		if len(buckets[i]) == 0 {
			if existing != nil {
				out.SetChild(i, existing, loader)
				total += existing.PointCountTree
			}
			continue
		}
		sub := subChunk(src, buckets[i])
		built, err := builder.BuildInCell(ctx, sub, inner.Cell.Child(i), splitLimit, loader)
		if err != nil {
			return nil, err
		}
		merged := built
		if existing != nil {
			merged, err = mergeSameCell(ctx, built, existing, splitLimit, loader)
			if err != nil {
				return nil, err
			}
		}
		out.SetChild(i, merged, loader)
		total += merged.PointCountTree
	}
	out.PointCountTree = total
	out.BBoxMin, out.BBoxMax = unionBBox(leaf, inner)
	return out, nil
}

// mergeInner folds two inner nodes sharing a cell by recursing into each
// matching octant (spec.md §4.8 step 5).
func mergeInner(ctx context.Context, a, b *node.Node, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	out := node.New(a.Cell)
	var total uint64
	for i := 0; i < 8; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ca, err := a.Child(i)
		if err != nil {
			return nil, err
		}
		cb, err := b.Child(i)
		if err != nil {
			return nil, err
		}
		switch {
		case ca == nil && cb == nil:
			continue
		case ca == nil:
			out.SetChild(i, cb, loader)
			total += cb.PointCountTree
		case cb == nil:
			out.SetChild(i, ca, loader)
			total += ca.PointCountTree
		default:
			merged, err := mergeSameCell(ctx, ca, cb, splitLimit, loader)
			if err != nil {
				return nil, err
			}
			out.SetChild(i, merged, loader)
			total += merged.PointCountTree
		}
	}
	out.PointCountTree = total
	out.BBoxMin, out.BBoxMax = unionBBox(a, b)
	return out, nil
}

// leafChunk exposes a leaf node's direct attributes as a chunk, in
// absolute coordinates, for feeding back into the builder.
func leafChunk(n *node.Node) *chunk.Chunk {
	return &chunk.Chunk{
		Positions:       n.AbsolutePositions(),
		Colors:          n.Attrs.Colors,
		Normals:         n.Attrs.Normals,
		Intensities:     n.Attrs.Intensities,
		Classifications: n.Attrs.Classifications,
	}
}

// subChunk extracts the points at idx from c, preserving whichever
// optional attribute arrays c carries.
func subChunk(c *chunk.Chunk, idx []int) *chunk.Chunk {
	out := &chunk.Chunk{Positions: make([][3]float64, len(idx))}
	if len(c.Colors) > 0 {
		out.Colors = make([][4]uint8, len(idx))
	}
	if len(c.Normals) > 0 {
		out.Normals = make([][3]float32, len(idx))
	}
	if len(c.Intensities) > 0 {
		out.Intensities = make([]int32, len(idx))
	}
	if len(c.Classifications) > 0 {
		out.Classifications = make([]uint8, len(idx))
	}
	for i, srcIdx := range idx {
		out.Positions[i] = c.Positions[srcIdx]
		if out.Colors != nil {
			out.Colors[i] = c.Colors[srcIdx]
		}
		if out.Normals != nil {
			out.Normals[i] = c.Normals[srcIdx]
		}
		if out.Intensities != nil {
			out.Intensities[i] = c.Intensities[srcIdx]
		}
		if out.Classifications != nil {
			out.Classifications[i] = c.Classifications[srcIdx]
		}
	}
	return out
}

// concatChunks appends b's points onto a copy of a.
func concatChunks(a, b *chunk.Chunk) *chunk.Chunk {
	out := &chunk.Chunk{Positions: append(append([][3]float64{}, a.Positions...), b.Positions...)}
	if len(a.Colors) > 0 || len(b.Colors) > 0 {
		out.Colors = append(append([][4]uint8{}, a.Colors...), b.Colors...)
	}
	if len(a.Normals) > 0 || len(b.Normals) > 0 {
		out.Normals = append(append([][3]float32{}, a.Normals...), b.Normals...)
	}
	if len(a.Intensities) > 0 || len(b.Intensities) > 0 {
		out.Intensities = append(append([]int32{}, a.Intensities...), b.Intensities...)
	}
	if len(a.Classifications) > 0 || len(b.Classifications) > 0 {
		out.Classifications = append(append([]uint8{}, a.Classifications...), b.Classifications...)
	}
	return out
}

// collectChunk walks n's entire subtree (resolving LinkedNode forwarding
// as it goes) and flattens every leaf's points into one chunk, in
// absolute coordinates. Used only by rebuildInCell's centered-cell
// growth case, where a single-slot wrap isn't geometrically valid.
func collectChunk(n *node.Node) (*chunk.Chunk, error) {
	out := &chunk.Chunk{}
	var walk func(*node.Node) error
	walk = func(cur *node.Node) error {
		r, err := node.Resolve(cur)
		if err != nil {
			return err
		}
		if r.IsLeaf() {
			leaf := leafChunk(r)
			out.Positions = append(out.Positions, leaf.Positions...)
			out.Colors = append(out.Colors, leaf.Colors...)
			out.Normals = append(out.Normals, leaf.Normals...)
			out.Intensities = append(out.Intensities, leaf.Intensities...)
			out.Classifications = append(out.Classifications, leaf.Classifications...)
			return nil
		}
		for i := 0; i < 8; i++ {
			child, err := r.Child(i)
			if err != nil {
				return err
			}
			if child != nil {
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(n); err != nil {
		return nil, err
	}
	return out, nil
}

// unionBBox combines two non-empty nodes' bounding boxes.
func unionBBox(a, b *node.Node) (min, max [3]float64) {
	min, max = a.BBoxMin, a.BBoxMax
	for i := 0; i < 3; i++ {
		if b.BBoxMin[i] < min[i] {
			min[i] = b.BBoxMin[i]
		}
		if b.BBoxMax[i] > max[i] {
			max[i] = b.BBoxMax[i]
		}
	}
	return min, max
}
