package kdtree

import "sort"

// neighbourHeap keeps the k closest Neighbour values seen so far. It is a
// small bounded structure (k is the leaf split-limit order of magnitude,
// never large), so a linear insert-and-trim is simpler and fast enough
// versus a real binary heap; Tree.KNearest/NearLine only ever call push
// up to the leaf's point count.
type neighbourHeap struct {
	items []Neighbour
}

// push inserts n, then trims to the cap farthest-first entries, breaking
// distance ties by lower index per spec.md §4.4.
func (h *neighbourHeap) push(n Neighbour, cap int) {
	h.items = append(h.items, n)
	sort.Slice(h.items, func(i, j int) bool {
		if h.items[i].Distance != h.items[j].Distance {
			return h.items[i].Distance < h.items[j].Distance
		}
		return h.items[i].Index < h.items[j].Index
	})
	if len(h.items) > cap {
		h.items = h.items[:cap]
	}
}

// sorted returns the accumulated neighbours in ascending distance order.
func (h *neighbourHeap) sorted() []Neighbour {
	return h.items
}
