// Package lod implements the level-of-detail generator (C10): a
// bottom-up pass that gives every inner node a bounded, stratified
// sample of its descendants' points, so that node alone can render a
// representative view of its whole subtree, per spec.md §4.9.
//
// The bottom-up sweep and its seed-from-id determinism follow the
// teacher's deterministic-from-hash idiom seen in
// les/lespay/client/wrsiterator_test.go's weighted random sampling (the
// closest pack analogue to "sample proportional to weight,
// reproducibly") and core/state/pruner/bloom.go's bottom-up recursion
// style.
package lod

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"

	"github.com/pointstream/pcidx/kdtree"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store"
	"github.com/pointstream/pcidx/store/ref"
)

// pool is one child's contribution to its parent's stratified sample:
// leaves contribute their own points directly ("leaves are unchanged;
// they already are their own LoD", spec.md §4.9 step 1); already-LoD'd
// inner children contribute their own LoD sample.
type pool struct {
	positions       [][3]float64
	colors          [][4]uint8
	normals         [][3]float32
	intensities     []int32
	classifications []uint8
	weight          uint64 // point_count_tree, drives the stratified proportion
}

func (p pool) count() int { return len(p.positions) }

// Generate runs the LoD pass over n's whole subtree, bottom-up, and
// persists every republished node to s under its original id (spec.md
// §4.9 step 4, §3 "Lifecycle"). Leaves are returned unchanged. ctx is
// checked between nodes so a long pass over a deep tree can be
// cancelled cleanly (spec.md §5).
func Generate(ctx context.Context, s store.Store, n *node.Node, splitLimit int, loader ref.Loader[*node.Node]) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved, err := node.Resolve(n)
	if err != nil {
		return nil, fmt.Errorf("octree/lod: resolve: %w", err)
	}
	if resolved.IsLeaf() {
		return resolved, nil
	}

	out := node.NewWithID(resolved.ID, resolved.Cell)
	out.BBoxMin, out.BBoxMax = resolved.BBoxMin, resolved.BBoxMax
	out.PointCountTree = resolved.PointCountTree
	out.PointCountNode = resolved.PointCountNode
	out.Attrs = resolved.Attrs

	var pools []pool
	for i := 0; i < 8; i++ {
		child, err := resolved.Child(i)
		if err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}
		newChild, err := Generate(ctx, s, child, splitLimit, loader)
		if err != nil {
			return nil, err
		}
		out.SetChild(i, newChild, loader)
		pools = append(pools, poolFrom(newChild))
	}

	sampled := stratifiedSample(resolved.ID, pools, splitLimit)
	out.LodAttrs.Positions = node.Relativize(out.Cell, sampled.positions)
	out.LodAttrs.Colors = sampled.colors
	out.LodAttrs.Normals = sampled.normals
	out.LodAttrs.Intensities = sampled.intensities
	out.LodAttrs.Classifications = sampled.classifications

	tree := kdtree.Build(out.LodAttrs.Positions)
	out.LodAttrs.KdTree = tree.Serialize()

	if _, err := node.Persist(s, out); err != nil {
		return nil, fmt.Errorf("octree/lod: persist %s: %w", out.ID, err)
	}
	return out, nil
}

func poolFrom(n *node.Node) pool {
	if n.IsLeaf() {
		return pool{
			positions:       n.AbsolutePositions(),
			colors:          n.Attrs.Colors,
			normals:         n.Attrs.Normals,
			intensities:     n.Attrs.Intensities,
			classifications: n.Attrs.Classifications,
			weight:          n.PointCountTree,
		}
	}
	return pool{
		positions:       n.AbsoluteLodPositions(),
		colors:          n.LodAttrs.Colors,
		normals:         n.LodAttrs.Normals,
		intensities:     n.LodAttrs.Intensities,
		classifications: n.LodAttrs.Classifications,
		weight:          n.PointCountTree,
	}
}

type sampleResult struct {
	positions       [][3]float64
	colors          [][4]uint8
	normals         [][3]float32
	intensities     []int32
	classifications []uint8
}

// stratifiedSample draws up to splitLimit representatives across pools,
// proportional to each pool's weight, deterministically seeded from
// nodeID (spec.md §4.9 step 2).
func stratifiedSample(nodeID string, pools []pool, splitLimit int) sampleResult {
	var out sampleResult
	if len(pools) == 0 {
		return out
	}
	var totalWeight uint64
	for _, p := range pools {
		totalWeight += p.weight
	}
	if totalWeight == 0 {
		return out
	}

	hasColors, hasNormals, hasIntensities, hasClassifications := false, false, false, false
	for _, p := range pools {
		if len(p.colors) > 0 {
			hasColors = true
		}
		if len(p.normals) > 0 {
			hasNormals = true
		}
		if len(p.intensities) > 0 {
			hasIntensities = true
		}
		if len(p.classifications) > 0 {
			hasClassifications = true
		}
	}

	rng := rand.New(rand.NewSource(seedFromID(nodeID)))
	for _, p := range pools {
		quota := int(float64(splitLimit) * float64(p.weight) / float64(totalWeight))
		if quota > p.count() {
			quota = p.count()
		}
		if quota <= 0 {
			continue
		}
		perm := rng.Perm(p.count())[:quota]
		for _, idx := range perm {
			out.positions = append(out.positions, p.positions[idx])
			if hasColors {
				if idx < len(p.colors) {
					out.colors = append(out.colors, p.colors[idx])
				} else {
					out.colors = append(out.colors, [4]uint8{})
				}
			}
			if hasNormals {
				if idx < len(p.normals) {
					out.normals = append(out.normals, p.normals[idx])
				} else {
					out.normals = append(out.normals, [3]float32{})
				}
			}
			if hasIntensities {
				if idx < len(p.intensities) {
					out.intensities = append(out.intensities, p.intensities[idx])
				} else {
					out.intensities = append(out.intensities, 0)
				}
			}
			if hasClassifications {
				if idx < len(p.classifications) {
					out.classifications = append(out.classifications, p.classifications[idx])
				} else {
					out.classifications = append(out.classifications, 0)
				}
			}
		}
	}
	return out
}

// seedFromID derives a reproducible PRNG seed from a node id, per
// spec.md §4.9 step 2's "seed derived from node id". Node ids are
// uuid.NewString() output (octree/node.New); a non-UUID id (synthetic
// test fixtures, for instance) falls back to an FNV hash of the string
// so the function never panics on its input.
func seedFromID(id string) int64 {
	if u, err := uuid.Parse(id); err == nil {
		return int64(binary.BigEndian.Uint64(u[8:16]))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
