// Package node implements the immutable octree node record (C4), per
// spec.md §3-4.4's Node, and its JSON/binary wire encodings (§6).
//
// The tagged NodeType discriminant (PointCloudNode / LinkedNode) follows
// the teacher's sum-type-by-discriminant style seen in
// trie/types/node.go: a node is either a real point-cloud node, or a
// forwarding pointer that lets an old root id keep resolving after its
// tree has been lifted into a taller common cell (spec.md §4.8 step 1,
// §9 "LinkedNode"). Merge itself never creates one; callers do.
package node

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pointstream/pcidx/octree/cell"
	"github.com/pointstream/pcidx/store"
	"github.com/pointstream/pcidx/store/ref"
)

// Type discriminates the two node payload shapes that can be persisted
// under a node id.
type Type uint8

const (
	// PointCloudNode is a regular node carrying geometry and attributes.
	PointCloudNode Type = iota
	// LinkedNode is a forwarding pointer: {child id, cell}, nothing
	// else. It exists purely so a lifted tree can republish its old
	// root id pointing at the new, taller structure without rewriting
	// every id that referenced it.
	LinkedNode
)

func (t Type) String() string {
	if t == LinkedNode {
		return "LinkedNode"
	}
	return "PointCloudNode"
}

// Node is the in-memory, immutable-once-finalized octree node record.
// Child access goes through a Ref so traversal can stay lazy once the
// node has been persisted and reloaded (spec.md §2 C4, §4.2).
type Node struct {
	ID   string
	Type Type
	Cell cell.Cell

	// BoundingBoxExact is the tight box of contained points, absolute
	// coordinates, valid for PointCloudNode only.
	BBoxMin, BBoxMax [3]float64

	PointCountTree uint64
	PointCountNode uint32

	Attrs    Attributes // direct (leaf) data; empty for pure inner nodes
	LodAttrs Attributes // LoD sample; empty until the LoD pass has run

	children [8]*ref.Ref[*Node]

	// linkedChild/linkedCell are populated only for Type == LinkedNode.
	linkedChild *ref.Ref[*Node]
	linkedCell  cell.Cell
}

// New constructs a fresh, in-memory PointCloudNode with a new id.
func New(c cell.Cell) *Node {
	return &Node{ID: uuid.NewString(), Type: PointCloudNode, Cell: c}
}

// NewWithID constructs a PointCloudNode reusing an existing id, as the
// LoD and Normal generators do when republishing a node under the same
// key with additional attributes (spec.md §3 "Lifecycle").
func NewWithID(id string, c cell.Cell) *Node {
	return &Node{ID: id, Type: PointCloudNode, Cell: c}
}

// NewLinked constructs a forwarding node: id points at child, which
// lives at a different (always larger) cell.
func NewLinked(id string, child *ref.Ref[*Node], childCell cell.Cell) *Node {
	return &Node{ID: id, Type: LinkedNode, Cell: childCell, linkedChild: child, linkedCell: childCell}
}

// IsLeaf reports whether n is a PointCloudNode with no children, i.e. a
// node whose direct Attrs are the authoritative data for the whole
// subtree (spec.md §3 invariant 3).
func (n *Node) IsLeaf() bool {
	if n.Type != PointCloudNode {
		return false
	}
	for _, c := range n.children {
		if c != nil {
			return false
		}
	}
	return true
}

// SetChild installs child at octant i, wrapping it in a Resolved ref so
// in-memory builds never force a reload of a node that's already
// materialized.
func (n *Node) SetChild(i int, child *Node, loader ref.Loader[*Node]) {
	if child == nil {
		n.children[i] = nil
		return
	}
	n.children[i] = ref.Resolved(child.ID, child, loader)
}

// SetChildRef installs a lazy reference at octant i directly, used when
// reconstructing a node loaded from the store.
func (n *Node) SetChildRef(i int, r *ref.Ref[*Node]) {
	n.children[i] = r
}

// ChildRef returns the reference at octant i, or nil if absent.
func (n *Node) ChildRef(i int) *ref.Ref[*Node] {
	return n.children[i]
}

// Child resolves (loading if necessary) the child at octant i. Returns
// nil, nil if no child is present at that octant.
func (n *Node) Child(i int) (*Node, error) {
	r := n.children[i]
	if r == nil {
		return nil, nil
	}
	return r.Value()
}

// LinkedChild resolves the forwarding target of a LinkedNode.
func (n *Node) LinkedChild() (*Node, error) {
	if n.Type != LinkedNode {
		return nil, fmt.Errorf("octree/node: LinkedChild called on %v", n.Type)
	}
	return n.linkedChild.Value()
}

// Resolve follows LinkedNode forwarding pointers until it reaches a
// PointCloudNode, per spec.md §9.
func Resolve(n *Node) (*Node, error) {
	for n.Type == LinkedNode {
		next, err := n.LinkedChild()
		if err != nil {
			return nil, err
		}
		n = next
	}
	return n, nil
}

// PointCount returns the count to use for traversal/budget decisions,
// resolving the Open Question from spec.md §9: leaves (and, in
// principle, inner nodes that kept direct data) use PointCountNode;
// every other inner node uses the LoD sample size
// (len(LodAttrs.Positions)), never PointCountTree, since PointCountTree
// counts the whole subtree rather than what's locally available to
// render at this node.
func (n *Node) PointCount() int {
	if n.Attrs.Len() > 0 {
		return int(n.PointCountNode)
	}
	return n.LodAttrs.Len()
}

// AbsolutePositions converts the node's cell-relative Attrs.Positions
// into absolute coordinates.
func (n *Node) AbsolutePositions() [][3]float64 {
	return absolutize(n.Cell, n.Attrs.Positions)
}

// AbsoluteLodPositions converts the node's cell-relative
// LodAttrs.Positions into absolute coordinates.
func (n *Node) AbsoluteLodPositions() [][3]float64 {
	return absolutize(n.Cell, n.LodAttrs.Positions)
}

func absolutize(c cell.Cell, rel [][3]float32) [][3]float64 {
	if len(rel) == 0 {
		return nil
	}
	centre := c.Centre()
	out := make([][3]float64, len(rel))
	for i, p := range rel {
		out[i] = [3]float64{
			centre[0] + float64(p[0]),
			centre[1] + float64(p[1]),
			centre[2] + float64(p[2]),
		}
	}
	return out
}

// Relativize converts absolute positions into the cell-relative
// single-precision encoding used for on-disk storage (spec.md §3
// "Positions encoding").
func Relativize(c cell.Cell, abs [][3]float64) [][3]float32 {
	if len(abs) == 0 {
		return nil
	}
	centre := c.Centre()
	out := make([][3]float32, len(abs))
	for i, p := range abs {
		out[i] = [3]float32{
			float32(p[0] - centre[0]),
			float32(p[1] - centre[1]),
			float32(p[2] - centre[2]),
		}
	}
	return out
}

// Loader returns a ref.Loader[*Node] bound to s, for constructing lazy
// references to children discovered while decoding a persisted node.
func Loader(s store.Store) ref.Loader[*Node] {
	return func(id string) (*Node, error) {
		return Load(s, id)
	}
}
