// Package leveldb wraps github.com/syndtr/goleveldb as a store.Store,
// the disk-backed backend the module ships so the C1 blob store actually
// has somewhere durable to put content beyond a test's process lifetime —
// the concrete analogue of go-ethereum's ethdb/leveldb package. A
// VictoriaMetrics/fastcache clean cache sits in front of it exactly as
// trie/disk_cache.go layers a fastcache.Cache in front of its own
// disk reads.
package leveldb

import (
	"bytes"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/pointstream/pcidx/internal/log"
	"github.com/pointstream/pcidx/metrics"
	"github.com/pointstream/pcidx/store"
)

var (
	putMeter      = metrics.NewRegisteredMeter("store/leveldb/put", "blobs written")
	getHitMeter   = metrics.NewRegisteredMeter("store/leveldb/get/hit", "clean cache hits")
	getMissMeter  = metrics.NewRegisteredMeter("store/leveldb/get/miss", "clean cache misses")
	getDiskMeter  = metrics.NewRegisteredMeter("store/leveldb/get/disk", "reads served from disk")
	conflictMeter = metrics.NewRegisteredMeter("store/leveldb/put/conflict", "rejected conflicting writes")
)

// Database is a store.Store backed by a LevelDB instance on disk, with a
// fixed-size clean-read cache in front of it.
type Database struct {
	db    *leveldb.DB
	clean *fastcache.Cache // clean blob cache, sized in bytes
	log   *log.Logger

	weak *weakCache
}

// defaultCleanCacheBytes matches the order of magnitude go-ethereum
// defaults TrieCleanSize to for its own disk layer cache.
const defaultCleanCacheBytes = 64 * 1024 * 1024

// Open opens (or creates) a LevelDB database rooted at dir.
func Open(dir string) (*Database, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("store/leveldb: open %q: %w", dir, err)
	}
	return &Database{
		db:    db,
		clean: fastcache.New(defaultCleanCacheBytes),
		log:   log.Root.With("store/leveldb"),
		weak:  newWeakCache(),
	}, nil
}

// Put implements store.Store.
func (d *Database) Put(key string, data []byte) error {
	existing, err := d.db.Get([]byte(key), nil)
	if err == nil {
		if bytes.Equal(existing, data) {
			return nil
		}
		conflictMeter.Mark(1)
		return store.ErrConflict
	}
	if err != leveldb.ErrNotFound {
		return fmt.Errorf("store/leveldb: read-before-write %q: %w", key, err)
	}
	if err := d.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("store/leveldb: put %q: %w", key, err)
	}
	d.clean.Set([]byte(key), data)
	putMeter.Mark(1)
	return nil
}

// Get implements store.Store.
func (d *Database) Get(key string) ([]byte, error) {
	if blob, ok := d.clean.HasGet(nil, []byte(key)); ok {
		getHitMeter.Mark(1)
		return blob, nil
	}
	getMissMeter.Mark(1)
	data, err := d.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store/leveldb: get %q: %w", key, err)
	}
	getDiskMeter.Mark(1)
	d.clean.Set([]byte(key), data)
	return data, nil
}

// Has implements store.Store.
func (d *Database) Has(key string) (bool, error) {
	ok, err := d.db.Has([]byte(key), nil)
	if err != nil {
		return false, fmt.Errorf("store/leveldb: has %q: %w", key, err)
	}
	return ok, nil
}

// CachePut implements store.Store.
func (d *Database) CachePut(key string, value any) { d.weak.put(key, value) }

// CacheGet implements store.Store.
func (d *Database) CacheGet(key string) (any, bool) { return d.weak.get(key) }

// Close implements store.Store.
func (d *Database) Close() error {
	return d.db.Close()
}
