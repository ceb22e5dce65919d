// Package ttlcache is the shared time-bounded memoization used for
// cooldown displays, on-chain resolution checks, and duplicate-log
// suppression. One abstraction, one prune operation, instead of ad-hoc
// expiry maps duplicated per feature.
package ttlcache

import (
	"sync"
	"time"
)

// entry is a value plus its expiry.
type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache maps keys to values with per-entry TTL. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]entry[V])}
}

// Set stores value under key until now+ttl.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expires: now.Add(ttl)}
}

// Get returns the value for key. An expired entry is a miss.
func (c *Cache[K, V]) Get(key K, now time.Time) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !now.Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Prune drops every expired entry and returns how many were removed.
func (c *Cache[K, V]) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included until pruned.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DedupSet suppresses duplicates within a TTL, e.g. repeated log lines for
// the same condition.
type DedupSet[K comparable] struct {
	cache *Cache[K, struct{}]
	ttl   time.Duration
}

// NewDedupSet creates a set whose entries expire after ttl.
func NewDedupSet[K comparable](ttl time.Duration) *DedupSet[K] {
	return &DedupSet[K]{cache: New[K, struct{}](), ttl: ttl}
}

// Seen returns true if key was already recorded inside the TTL, recording
// it otherwise.
func (d *DedupSet[K]) Seen(key K, now time.Time) bool {
	if _, ok := d.cache.Get(key, now); ok {
		return true
	}
	d.cache.Set(key, struct{}{}, d.ttl, now)
	return false
}

// Prune drops expired keys.
func (d *DedupSet[K]) Prune(now time.Time) int {
	return d.cache.Prune(now)
}
