// Package memorydb implements an in-process store.Store backed by a plain
// map, mirroring the dependency-free fallback go-ethereum keeps alongside
// its disk-backed ethdb implementations for tests and small working sets.
package memorydb

import (
	"bytes"
	"sync"

	"github.com/pointstream/pcidx/store"
)

// Database is a store.Store that keeps every blob resident in a Go map.
// It never evicts; the weak cache slots are kept in a separate map so
// CachePut/CacheGet can be exercised independently of Put/Get, per
// spec.md §4.1 ("orthogonal to blob persistence").
type Database struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	cache map[string]any
}

// New creates an empty in-memory store.
func New() *Database {
	return &Database{
		blobs: make(map[string][]byte),
		cache: make(map[string]any),
	}
}

// Put implements store.Store.
func (db *Database) Put(key string, data []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if existing, ok := db.blobs[key]; ok {
		if bytes.Equal(existing, data) {
			return nil
		}
		return store.ErrConflict
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	db.blobs[key] = cp
	return nil
}

// Get implements store.Store.
func (db *Database) Get(key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	data, ok := db.blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Has implements store.Store.
func (db *Database) Has(key string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.blobs[key]
	return ok, nil
}

// CachePut implements store.Store.
func (db *Database) CachePut(key string, value any) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cache[key] = value
}

// CacheGet implements store.Store.
func (db *Database) CacheGet(key string) (any, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.cache[key]
	return v, ok
}

// Close implements store.Store. It is a no-op: the map is reclaimed by the
// garbage collector once the Database is dropped.
func (db *Database) Close() error { return nil }

// Len returns the number of persisted blobs, for tests.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.blobs)
}
