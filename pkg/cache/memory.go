package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is a thread-safe LRU cache for exported results.
//
// The cache uses:
//   - Hash map for O(1) lookups
//   - Doubly-linked list for LRU ordering
//   - TTL for automatic expiration
//
// Items are copied on Put and on Get so callers cannot mutate cached lists.
type MemoryCache struct {
	mu sync.Mutex

	maxSize int
	ttl     time.Duration
	now     func() time.Time

	list  *list.List
	items map[uint64]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key       uint64
	items     []any
	expiresAt time.Time
}

// NewMemoryCache creates a result cache.
//
// Parameters:
//   - maxSize: maximum number of exports (LRU eviction when exceeded)
//   - ttl: time-to-live for exports (0 = no expiration)
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		list:    list.New(),
		items:   make(map[uint64]*list.Element, maxSize),
	}
}

// Key hashes (jobID, key) into the map key.
func Key(jobID, key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(jobID))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return h.Sum64()
}

// Get returns the items stored under (jobID, key). Expired entries are
// removed and reported as a miss.
func (c *MemoryCache) Get(_ context.Context, jobID, key string) ([]any, bool, error) {
	k := Key(jobID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[k]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false, nil
	}
	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		atomic.AddUint64(&c.misses, 1)
		return nil, false, nil
	}
	c.list.MoveToFront(elem)
	atomic.AddUint64(&c.hits, 1)
	return append([]any(nil), entry.items...), true, nil
}

// Put stores items, evicting the least recently used export when full.
func (c *MemoryCache) Put(_ context.Context, jobID, key string, items []any) error {
	k := Key(jobID, key)
	stored := append([]any{}, items...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.items = stored
		if c.ttl > 0 {
			entry.expiresAt = c.now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return nil
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{key: k, items: stored}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.items[k] = c.list.PushFront(entry)
	return nil
}

// Remove deletes one export.
func (c *MemoryCache) Remove(jobID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[Key(jobID, key)]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.items = make(map[uint64]*list.Element, c.maxSize)
}

// Len returns the number of cached exports.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// Close clears the cache.
func (c *MemoryCache) Close() error {
	c.Clear()
	return nil
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Size:    c.Len(),
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// Stats holds cache performance statistics.
type Stats struct {
	Size    int     // Current number of entries
	MaxSize int     // Maximum capacity
	Hits    uint64  // Number of cache hits
	Misses  uint64  // Number of cache misses
	HitRate float64 // Hit rate percentage (0-100)
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *MemoryCache) evictOldest() {
	if elem := c.list.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element from the cache.
// Caller must hold the lock.
func (c *MemoryCache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

var _ ResultCache = (*MemoryCache)(nil)
