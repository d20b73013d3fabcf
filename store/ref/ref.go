// Package ref implements the persistent reference (C2): a lazy handle
// {id, loader} resolving to a typed value, weakly cached, grounded on the
// teacher's combination of trie/types.Node (stable id + payload) and
// triedb/pathdb's layered lookup-then-load indirection.
package ref

import "sync"

// Loader resolves an id to its value, e.g. by reading a blob from the
// store and decoding it. Loader may be called concurrently by multiple
// Refs racing on the first Value() call; it must be safe for that.
type Loader[T any] func(id string) (T, error)

// Ref is a lazy, weakly-cached handle over a single persisted value. It
// never owns the referent: the authoritative copy lives in the backing
// store, and Ref merely remembers how to fetch it again once its local
// slot is evicted.
type Ref[T any] struct {
	id     string
	loader Loader[T]

	mu     sync.Mutex
	cached T
	valid  bool
}

// New constructs a reference to id, resolved on demand via loader.
func New[T any](id string, loader Loader[T]) *Ref[T] {
	return &Ref[T]{id: id, loader: loader}
}

// Resolved constructs a reference that already holds value, e.g. for a
// node just built in memory that has not yet been flushed to the store.
// It still carries loader so a later Evict can force a genuine reload
// from the persistence layer.
func Resolved[T any](id string, value T, loader Loader[T]) *Ref[T] {
	return &Ref[T]{id: id, loader: loader, cached: value, valid: true}
}

// ID returns the identifier this reference points to.
func (r *Ref[T]) ID() string { return r.id }

// Value returns the referent, loading it if not currently cached. Two
// goroutines racing here both observe an equal value; only one of them
// wins the cache slot, matching spec.md §5's "at most one winning the
// cache slot" rule.
func (r *Ref[T]) Value() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.valid {
		return r.cached, nil
	}
	v, err := r.loader(r.id)
	if err != nil {
		var zero T
		return zero, err
	}
	r.cached = v
	r.valid = true
	return v, nil
}

// TryValue returns the currently cached value without forcing a load.
func (r *Ref[T]) TryValue() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.valid {
		var zero T
		return zero, false
	}
	return r.cached, true
}

// Evict drops the cached value, forcing the next Value() call to reload
// through the loader. Used to simulate reclamation under memory
// pressure in tests.
func (r *Ref[T]) Evict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.cached = zero
	r.valid = false
}
