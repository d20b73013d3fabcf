// Package octree holds error values shared across the octree
// construction, merge, LoD, normal, and query subpackages (spec.md §7).
package octree

import "errors"

// ErrInvariant marks a fatal structural invariant violation: a merge
// that would produce a subtree with zero points, a child id missing
// from the store mid-traversal, or an attribute array whose length
// disagrees with its node's point count. These are never recovered
// from silently, per spec.md §7's error handling policy.
var ErrInvariant = errors.New("octree: invariant violation")
