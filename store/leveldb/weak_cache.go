package leveldb

import "sync"

// weakCacheCapacity bounds the number of resident entries in the
// process-local object cache. Go has no true weak references, so this
// module follows the same approach the teacher takes for its own clean
// caches (trie/disk_cache.go, triedb/pathdb/disklayer.go): a fixed byte
// or count budget that evicts once full, standing in for "reclaimed
// under memory pressure" (spec.md §4.1).
const weakCacheCapacity = 100_000

// weakCache is a bounded, concurrency-safe cache of arbitrary decoded
// objects keyed by the same name used for the persisted blob. It backs
// Database.CachePut/CacheGet, kept separate from the fastcache clean
// blob cache because cached values here are typed Go objects (e.g. a
// decoded *node.Node or *kdtree.Tree), not raw bytes.
type weakCache struct {
	mu      sync.Mutex
	entries map[string]any
	order   []string // FIFO eviction order, approximating LRU cheaply
}

func newWeakCache() *weakCache {
	return &weakCache{entries: make(map[string]any)}
}

func (c *weakCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= weakCacheCapacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = value
}

func (c *weakCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}
