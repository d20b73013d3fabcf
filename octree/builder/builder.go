// Package builder implements the in-memory octree builder (C6): bulk
// construction of a fresh octree from one chunk by recursive octant
// partition respecting the split-limit, per spec.md §4.5.
//
// The recursion follows the teacher's post-order "commit children, then
// self" shape (trie/committer.go's commit/commitChildren), generalized
// from a trie's nibble-path descent to geometric octant partition.
package builder

import (
	"context"
	"fmt"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/kdtree"
	"github.com/pointstream/pcidx/octree/cell"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store/ref"
)

// minExponent is the floor below which the builder stops subdividing and
// accepts an oversized leaf, per spec.md §4.5 edge case (i): coincident
// points that would otherwise recurse forever. 2^-20 of a unit cell is
// far below single-precision position resolution, so no real point set
// should ever hit it except genuinely coincident samples.
const minExponent = -20

// Build constructs a fresh octree over chunk c with the given split
// limit, returning the root node. An empty chunk returns a sentinel
// empty node per spec.md §4.5 edge case (ii).
func Build(ctx context.Context, c *chunk.Chunk, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if splitLimit <= 0 {
		return nil, fmt.Errorf("octree/builder: split limit must be positive, got %d", splitLimit)
	}
	bmin, bmax, empty := c.BoundingBox()
	if empty {
		root := node.New(cell.New(0, 0, 0, 0))
		root.PointCountTree = 0
		return root, nil
	}
	rootCell := cell.SmallestEnclosing(bmin, bmax)
	idx := make([]int, c.Len())
	for i := range idx {
		idx[i] = i
	}
	return build(ctx, c, idx, rootCell, splitLimit, loader)
}

// BuildInCell constructs a tree over c's points constrained to a
// specific root cell, rather than computing the smallest enclosing
// cell. Used by the Merge engine's re-split steps (spec.md §4.8 step 3
// "leaf + leaf ... re-split"), which must keep the result rooted at the
// cell the merge is already operating on.
func BuildInCell(ctx context.Context, c *chunk.Chunk, rootCell cell.Cell, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if splitLimit <= 0 {
		return nil, fmt.Errorf("octree/builder: split limit must be positive, got %d", splitLimit)
	}
	idx := make([]int, c.Len())
	for i := range idx {
		idx[i] = i
	}
	if len(idx) == 0 {
		n := node.New(rootCell)
		n.PointCountTree = 0
		return n, nil
	}
	return build(ctx, c, idx, rootCell, splitLimit, loader)
}

func build(ctx context.Context, c *chunk.Chunk, idx []int, cl cell.Cell, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := node.New(cl)
	if len(idx) <= splitLimit || cl.E <= minExponent {
		fillLeaf(n, c, idx)
		return n, nil
	}
	buckets := make([][]int, 8)
	for _, i := range idx {
		sub := cl.SubIndex(c.Positions[i])
		buckets[sub] = append(buckets[sub], i)
	}
	var total uint64
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		child, err := build(ctx, c, bucket, cl.Child(i), splitLimit, loader)
		if err != nil {
			return nil, err
		}
		n.SetChild(i, child, loader)
		total += child.PointCountTree
	}
	n.PointCountTree = total
	n.BBoxMin, n.BBoxMax = childBBox(n)
	return n, nil
}

func fillLeaf(n *node.Node, c *chunk.Chunk, idx []int) {
	positions := make([][3]float64, len(idx))
	var colors [][4]uint8
	var normals [][3]float32
	var intensities []int32
	var classifications []uint8
	if len(c.Colors) > 0 {
		colors = make([][4]uint8, len(idx))
	}
	if len(c.Normals) > 0 {
		normals = make([][3]float32, len(idx))
	}
	if len(c.Intensities) > 0 {
		intensities = make([]int32, len(idx))
	}
	if len(c.Classifications) > 0 {
		classifications = make([]uint8, len(idx))
	}
	for i, srcIdx := range idx {
		positions[i] = c.Positions[srcIdx]
		if colors != nil {
			colors[i] = c.Colors[srcIdx]
		}
		if normals != nil {
			normals[i] = c.Normals[srcIdx]
		}
		if intensities != nil {
			intensities[i] = c.Intensities[srcIdx]
		}
		if classifications != nil {
			classifications[i] = c.Classifications[srcIdx]
		}
	}
	bmin, bmax := boundsOf(positions)
	n.BBoxMin, n.BBoxMax = bmin, bmax
	n.Attrs.Positions = node.Relativize(n.Cell, positions)
	n.Attrs.Colors = colors
	n.Attrs.Normals = normals
	n.Attrs.Intensities = intensities
	n.Attrs.Classifications = classifications
	n.PointCountNode = uint32(len(idx))
	n.PointCountTree = uint64(len(idx))
	tree := kdtree.Build(n.Attrs.Positions)
	n.Attrs.KdTree = tree.Serialize()
}

func boundsOf(positions [][3]float64) (min, max [3]float64) {
	if len(positions) == 0 {
		return
	}
	min, max = positions[0], positions[0]
	for _, p := range positions[1:] {
		for a := 0; a < 3; a++ {
			if p[a] < min[a] {
				min[a] = p[a]
			}
			if p[a] > max[a] {
				max[a] = p[a]
			}
		}
	}
	return
}

func childBBox(n *node.Node) (min, max [3]float64) {
	first := true
	for i := 0; i < 8; i++ {
		r := n.ChildRef(i)
		if r == nil {
			continue
		}
		child, err := r.Value()
		if err != nil {
			continue
		}
		if child.PointCountTree == 0 {
			continue
		}
		if first {
			min, max = child.BBoxMin, child.BBoxMax
			first = false
			continue
		}
		for a := 0; a < 3; a++ {
			if child.BBoxMin[a] < min[a] {
				min[a] = child.BBoxMin[a]
			}
			if child.BBoxMax[a] > max[a] {
				max[a] = child.BBoxMax[a]
			}
		}
	}
	return
}
