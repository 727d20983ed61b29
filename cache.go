package ingestkit

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// DefaultCacheCapacity is the number of results kept by default.
const DefaultCacheCapacity = 50

// ResultCache memoizes sanitization results by Fingerprint.
//
// Implementations must be safe for concurrent use.
type ResultCache interface {
	// Get returns the cached result for key and true if found.
	Get(ctx context.Context, key string) (*Result, bool)

	// Set stores a result, evicting entries beyond the capacity.
	Set(ctx context.Context, key string, r *Result)

	// Len returns the number of cached results.
	Len() int

	// Clear removes all results.
	Clear(ctx context.Context)
}

// CacheStats provides statistics about cache usage.
// Implementations may optionally support this interface.
type CacheStats interface {
	// Stats returns cache statistics.
	Stats() CacheStatistics
}

// CacheStatistics contains cache performance metrics.
type CacheStatistics struct {
	Hits      int64
	Misses    int64
	Size      int64
	Evictions int64
	HitRate   float64
}

// EvictionPolicy selects which entry leaves a full cache.
type EvictionPolicy string

const (
	// EvictFIFO removes the oldest inserted entry. Reads do not refresh.
	EvictFIFO EvictionPolicy = "fifo"

	// EvictLRU removes the least recently read or written entry.
	EvictLRU EvictionPolicy = "lru"
)

// ParseEvictionPolicy accepts "fifo", "lru" or "" (FIFO).
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch EvictionPolicy(s) {
	case "", EvictFIFO:
		return EvictFIFO, nil
	case EvictLRU:
		return EvictLRU, nil
	}
	return "", fmt.Errorf("%w: unknown cache eviction policy %q", ErrNotSupported, s)
}

type cacheEntry struct {
	key    string
	result *Result
}

// MemoryResultCache is a bounded in-memory ResultCache.
// It is thread-safe. Get returns the stored *Result instance itself.
type MemoryResultCache struct {
	mu        sync.Mutex
	capacity  int
	policy    EvictionPolicy
	order     *list.List
	entries   map[string]*list.Element
	hits      int64
	misses    int64
	evictions int64
}

// NewMemoryResultCache creates a cache holding at most capacity results.
// A non-positive capacity uses DefaultCacheCapacity.
func NewMemoryResultCache(capacity int, policy EvictionPolicy) *MemoryResultCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if policy == "" {
		policy = EvictFIFO
	}
	return &MemoryResultCache{
		capacity: capacity,
		policy:   policy,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get retrieves a result from the cache.
func (c *MemoryResultCache) Get(_ context.Context, key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	if c.policy == EvictLRU {
		c.order.MoveToBack(el)
	}
	return el.Value.(*cacheEntry).result, true
}

// Set stores a result in the cache.
func (c *MemoryResultCache) Set(_ context.Context, key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = r
		if c.policy == EvictLRU {
			c.order.MoveToBack(el)
		}
		return
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, result: r})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions++
	}
}

// Len returns the number of cached results.
func (c *MemoryResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes all values from the cache.
func (c *MemoryResultCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Stats returns cache statistics.
func (c *MemoryResultCache) Stats() CacheStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStatistics{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      int64(c.order.Len()),
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}

// Ensure MemoryResultCache implements ResultCache and CacheStats
var (
	_ ResultCache = (*MemoryResultCache)(nil)
	_ CacheStats  = (*MemoryResultCache)(nil)
)
