package policy

import (
	"container/list"
	"sync"
)

// PatternCache is a bounded LRU of tool/domain pattern match results,
// protected for concurrent read with single-writer insertion (spec §4.3,
// §5). Statistics are observable via Stats.
type PatternCache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key   string
	value bool
}

// NewPatternCache constructs a cache holding at most maxSize entries.
func NewPatternCache(maxSize int) *PatternCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &PatternCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
	}
}

// GetOrCompute returns the cached match result for key, computing and
// storing it via compute if absent.
func (c *PatternCache) GetOrCompute(key string, compute func() bool) bool {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		c.hits++
		v := el.Value.(*cacheEntry).value
		c.mu.Unlock()
		return v
	}
	c.misses++
	c.mu.Unlock()

	v := compute()

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).value
	}
	el := c.order.PushFront(&cacheEntry{key: key, value: v})
	c.entries[key] = el
	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	return v
}

// CacheStats is a point-in-time snapshot of cache statistics.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Stats returns a snapshot of cache hit/miss/size counters.
func (c *PatternCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: c.order.Len()}
}
