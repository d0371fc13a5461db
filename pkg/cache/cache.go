package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
)

// Retention is how long an expired entry stays readable through Peek before
// it is evicted.
const Retention = 24 * time.Hour

type item[V any] struct {
	value      V
	expiration time.Time
}

// Cache is an in-memory cache with per-entry expiration. Concurrent
// GetOrCompute calls for the same key share a single computation.
type Cache[V any] struct {
	clock clock.Clock
	group singleflight.Group

	mu          sync.RWMutex
	items       map[string]item[V]
	lastCleanup time.Time
}

// New creates a new cache. A nil clock uses the real clock.
func New[V any](clk clock.Clock) *Cache[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache[V]{
		clock: clk,
		items: make(map[string]item[V]),
	}
}

// Key joins parts into a cache key, e.g. Key("generation", "2025-07-01", "rce").
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// Set adds value under key for ttl. At most once per Retention it also
// evicts entries that expired more than Retention ago.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.items[key] = item[V]{
		value:      value,
		expiration: now.Add(ttl),
	}
	if now.Sub(c.lastCleanup) >= Retention {
		c.cleanup(now)
	}
}

// Get returns the value for key if it exists and has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || !c.clock.Now().Before(it.expiration) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Peek returns the value for key even if it has expired, for at least
// Retention after expiry.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	return it.value, ok
}

// cleanup removes every entry that expired at least Retention before now.
// c.mu must be held.
func (c *Cache[V]) cleanup(now time.Time) {
	for k, it := range c.items {
		if now.Sub(it.expiration) >= Retention {
			delete(c.items, k)
		}
	}
	c.lastCleanup = now
}

// Len returns the number of entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrCompute returns the cached value for key or calls fn to compute it.
// Successful results are stored for ttl; errors are never cached. A ttl of
// zero or less returns the computed value without storing it.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// another caller may have filled the entry while we waited for the
		// group
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if ttl > 0 {
			c.Set(key, v, ttl)
		}
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
