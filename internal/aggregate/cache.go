package aggregate

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a concurrent-safe LRU cache for computed aggregates with TTL
// expiration and whole-cache version invalidation. Every issue mutation
// bumps the version, so a hit is always consistent with the live data: there
// is no per-key invalidation to get wrong.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	version    atomic.Int64
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry struct {
	value     any
	version   int64
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Version    int64   `json:"version"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a Cache with the given capacity and TTL.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Key builds a cache key from a view name and its parameters.
func Key(view string, args ...any) string {
	key := view
	for _, a := range args {
		key += fmt.Sprintf("/%v", a)
	}
	return key
}

// Bump invalidates all cached aggregates by advancing the data version.
func (c *Cache) Bump() {
	c.version.Add(1)
}

// Version returns the current data version.
func (c *Cache) Version() int64 {
	return c.version.Load()
}

// Get retrieves a cached aggregate. Returns false on miss, expiration, or a
// stale data version.
func (c *Cache) Get(key string) (any, bool) {
	version := c.version.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if entry.version != version || time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, false
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.value, true
}

// Put stores an aggregate at the current data version, evicting the oldest
// entry if at capacity.
func (c *Cache) Put(key string, value any) {
	entry := &cacheEntry{value: value, version: c.version.Load(), createdAt: time.Now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = entry
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Version:    c.version.Load(),
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
