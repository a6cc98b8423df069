// Package cachemanager provides the in-process cache and request coalescing
// used by the retrieval engine.
//
// Design Notes:
//   - TTLCache keeps the last successfully computed value for every key after
//     it expires or is invalidated, so degraded responses can be served
//   - Expiry is checked lazily on read; there is no background sweeper and no
//     capacity eviction, since evicting a key would drop its last good value
//   - Coalescer ensures at most one upstream computation per key at a time
package cachemanager

import (
	"strings"
	"sync"
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
)

// CacheConfig configures a TTLCache.
type CacheConfig struct {
	// Now overrides the time source; nil uses time.Now.
	Now func() time.Time
}

// TTLCache is a thread-safe map from string keys to values with per-entry
// expiry and stale retention.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry[V]
	now     func() time.Time
}

// NewTTLCache creates an empty cache.
func NewTTLCache[V any](cfg CacheConfig) *TTLCache[V] {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{
		entries: make(map[string]*models.CacheEntry[V]),
		now:     now,
	}
}

// Get returns the value stored under key. found is false when the key was
// never written; fresh is false once the entry's TTL elapsed or the key was
// invalidated. A found-but-stale value is the last good one.
// Complexity: O(1).
func (c *TTLCache[V]) Get(key string) (value V, found bool, fresh bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return value, false, false
	}
	return e.Value, true, !e.IsExpired(c.now())
}

// GetStale returns the last good value regardless of freshness.
func (c *TTLCache[V]) GetStale(key string) (V, bool) {
	v, found, _ := c.Get(key)
	return v, found
}

// Put stores value under key, fresh for ttl.
// Complexity: O(1).
func (c *TTLCache[V]) Put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &models.CacheEntry[V]{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
		Fresh:     ttl > 0,
	}
}

// Invalidate marks key stale without discarding its last good value.
// Returns true if the key existed.
func (c *TTLCache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.Fresh = false
	return true
}

// InvalidatePrefix marks every key starting with prefix stale.
// Returns the number of keys affected.
// Complexity: O(n) in the number of cached keys.
func (c *TTLCache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			e.Fresh = false
			n++
		}
	}
	return n
}

// Size returns the number of keys held, fresh or stale.
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
