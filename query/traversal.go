// Package query implements the octree query engine (C12): a uniform
// push-down-predicate traversal skeleton, specialized into the concrete
// query shapes spec.md §4.11 names (k-NN, near-line/ray, plane, hull,
// polygon, frustum, and level queries).
//
// The work-stack iterator follows the teacher's resumable,
// layer-aware enumeration design in
// triedb/pathdb/iterator_test.go/lookup.go: a caller pulls one result
// chunk at a time and may stop mid-stream without having materialized
// the rest of the tree.
package query

import (
	"context"
	"fmt"

	"github.com/pointstream/pcidx/octree/cell"
	"github.com/pointstream/pcidx/octree/node"
)

// FilterState classifies a node's relationship to a query region, per
// spec.md §4.11's "state machine" design note. A FullyOutside node is
// pruned without ever touching its attributes.
type FilterState int

const (
	FullyOutside FilterState = iota
	Partial
	FullyInside
)

// Predicate bundles the three functions the uniform traversal needs,
// per spec.md §4.11's opening paragraph. FullyInside and FullyOutside
// classify a node's cell as a box; PointInside tests one absolute
// position. MinExponent is the floor cell exponent below which
// traversal always treats the node as a leaf for yielding purposes (used
// by level queries; ordinary queries pass a very low value so only
// true leaves act as the floor).
type Predicate struct {
	FullyInside  func(n *node.Node) bool
	FullyOutside func(n *node.Node) bool
	PointInside  func(p [3]float64) bool
	MinExponent  int32
}

// State classifies n directly from pred, without yet deciding whether
// to recurse or yield.
func (pred Predicate) State(n *node.Node) FilterState {
	if pred.FullyOutside(n) {
		return FullyOutside
	}
	if pred.FullyInside(n) {
		return FullyInside
	}
	return Partial
}

// ResultChunk is one batch of matching points, carrying whichever
// optional attribute columns the source node had available. A nil
// column means "absent from the source", per spec.md §4.11's "never
// throw on missing optional attributes: absent ... yield null columns"
// rule.
type ResultChunk struct {
	Positions       [][3]float64
	Colors          [][4]uint8
	Normals         [][3]float32
	Intensities     []int32
	Classifications []uint8
}

// Len returns the number of points in the chunk.
func (c ResultChunk) Len() int { return len(c.Positions) }

// Iterator is the work-stack traversal state machine: each call to
// Next() pops the next candidate node, classifies and either yields a
// chunk or pushes its children, per spec.md §4.11's uniform traversal
// procedure.
type Iterator struct {
	ctx   context.Context
	pred  Predicate
	stack []*node.Node
}

// NewIterator constructs an Iterator rooted at root. A nil root yields
// nothing. Children are resolved through whichever loader root's own
// tree was already constructed with (node.Node children carry their own
// bound loader), so the iterator itself needs none.
func NewIterator(ctx context.Context, root *node.Node, pred Predicate) *Iterator {
	it := &Iterator{ctx: ctx, pred: pred}
	if root != nil {
		it.stack = []*node.Node{root}
	}
	return it
}

// Next returns the next matching chunk, or ok=false once the traversal
// is exhausted. A caller may stop calling Next at any point; the
// Iterator holds no resources beyond its own work-stack.
func (it *Iterator) Next() (chunk ResultChunk, ok bool, err error) {
	for len(it.stack) > 0 {
		if err := it.ctx.Err(); err != nil {
			return ResultChunk{}, false, err
		}
		n := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		resolved, err := node.Resolve(n)
		if err != nil {
			return ResultChunk{}, false, fmt.Errorf("query: resolve: %w", err)
		}
		if it.pred.FullyOutside(resolved) {
			continue
		}
		atFloor := resolved.IsLeaf() || resolved.Cell.E <= it.pred.MinExponent
		if atFloor {
			if it.pred.FullyInside(resolved) {
				full := fullChunk(resolved)
				if full.Len() == 0 {
					continue
				}
				return full, true, nil
			}
			partial := filterChunk(resolved, it.pred.PointInside)
			if partial.Len() == 0 {
				continue
			}
			return partial, true, nil
		}
		for i := 7; i >= 0; i-- {
			child, err := resolved.Child(i)
			if err != nil {
				return ResultChunk{}, false, fmt.Errorf("query: child %d: %w", i, err)
			}
			if child != nil {
				it.stack = append(it.stack, child)
			}
		}
	}
	return ResultChunk{}, false, nil
}

// Collect drains it fully into a single slice of chunks, for callers
// that don't need streaming semantics.
func Collect(it *Iterator) ([]ResultChunk, error) {
	var out []ResultChunk
	for {
		c, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// pointsOf returns n's own point data: direct Attrs if n carries
// positions, else its LoD sample -- "node or LoD if no node-level data"
// per spec.md §4.11.
func pointsOf(n *node.Node) (positions [][3]float64, colors [][4]uint8, normals [][3]float32, intensities []int32, classifications []uint8) {
	if n.Attrs.Len() > 0 {
		return n.AbsolutePositions(), n.Attrs.Colors, n.Attrs.Normals, n.Attrs.Intensities, n.Attrs.Classifications
	}
	return n.AbsoluteLodPositions(), n.LodAttrs.Colors, n.LodAttrs.Normals, n.LodAttrs.Intensities, n.LodAttrs.Classifications
}

func fullChunk(n *node.Node) ResultChunk {
	positions, colors, normals, intensities, classifications := pointsOf(n)
	return ResultChunk{
		Positions:       positions,
		Colors:          colors,
		Normals:         normals,
		Intensities:     intensities,
		Classifications: classifications,
	}
}

func filterChunk(n *node.Node, pointInside func([3]float64) bool) ResultChunk {
	positions, colors, normals, intensities, classifications := pointsOf(n)
	var out ResultChunk
	for i, p := range positions {
		if !pointInside(p) {
			continue
		}
		out.Positions = append(out.Positions, p)
		if len(colors) > 0 {
			out.Colors = append(out.Colors, colors[i])
		}
		if len(normals) > 0 {
			out.Normals = append(out.Normals, normals[i])
		}
		if len(intensities) > 0 {
			out.Intensities = append(out.Intensities, intensities[i])
		}
		if len(classifications) > 0 {
			out.Classifications = append(out.Classifications, classifications[i])
		}
	}
	return out
}

// boxOf returns n's cell bounds, the "box" spec.md §4.11's predicate
// table tests against.
func boxOf(n *node.Node) (min, max [3]float64) {
	return n.Cell.Min(), n.Cell.Max()
}

// cellIntersectsBox is a convenience wrapper used by predicates that
// need to compare a node's cell against an arbitrary padded box (near
// polygon's "disjoint from polygon's padded 3D bounds" test).
func cellIntersectsBox(c cell.Cell, bmin, bmax [3]float64) bool {
	return c.IntersectsBox(bmin, bmax)
}
