package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL support. Expired items are
// dropped lazily on access and when the cache is full.
type Cache[V any] struct {
	mu         sync.RWMutex
	items      map[string]entry[V]
	defaultTTL time.Duration
	maxItems   int
	clock      clock.Clock

	hits   uint64
	misses uint64
}

// New creates a cache. maxItems <= 0 means unbounded; a nil clock uses wall
// time.
func New[V any](defaultTTL time.Duration, maxItems int, clk clock.Clock) *Cache[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache[V]{
		items:      make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		maxItems:   maxItems,
		clock:      clk,
	}
}

// Get retrieves a value from cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[key]
	if !exists || !c.clock.Now().Before(e.expiresAt) {
		if exists {
			delete(c.items, key)
		}
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value in cache with default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL. A full cache first drops
// expired items, then the item closest to expiry.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.purgeLocked()
		if len(c.items) >= c.maxItems {
			c.evictOldestLocked()
		}
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)}
}

// Delete removes a key from cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all items from cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry[V])
}

// Purge removes expired items and returns how many were dropped.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

func (c *Cache[V]) purgeLocked() int {
	now := c.clock.Now()
	removed := 0
	for key, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, e := range c.items {
		if !found || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, e.expiresAt, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if value, found := c.Get(key); found {
		return value, nil
	}

	value, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}

// Stats returns cache statistics
type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Size:   len(c.items),
		Hits:   c.hits,
		Misses: c.misses,
	}
}
