// Package valuecache implements the per-connection, per-collection LRU
// of deserialized values, backed by hashicorp/golang-lru/v2 for the
// fixed-capacity eviction policy.
package valuecache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// entry pairs a cached value with the rowVersion it was read at, so a
// hit is only valid when the caller's observed rowVersion still
// matches.
type entry[V any] struct {
	rowVersion uint64
	value      V
}

// Cache is a capacity-bounded LRU of collection values. A nil *Cache is
// valid and behaves as caching disabled.
type Cache[V any] struct {
	lru *lru.Cache[string, entry[V]]
}

// New builds a Cache with the given capacity. Capacity <= 0 disables
// caching entirely: Get always misses and Put is a no-op. Turf treats an
// explicitly configured non-positive size as disabled rather than
// unlimited; an unconfigured size gets the default capacity upstream.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		return &Cache[V]{}
	}
	c, err := lru.New[string, entry[V]](capacity)
	if err != nil {
		// Only returned by golang-lru for capacity <= 0, already excluded above.
		return &Cache[V]{}
	}
	return &Cache[V]{lru: c}
}

// Get returns the cached value for key only if its stored rowVersion
// equals the caller's observed rowVersion.
func (c *Cache[V]) Get(key string, rowVersion uint64) (V, bool) {
	var zero V
	if c == nil || c.lru == nil {
		return zero, false
	}
	e, ok := c.lru.Get(key)
	if !ok || e.rowVersion != rowVersion {
		return zero, false
	}
	return e.value, true
}

// Put inserts or refreshes a cache entry, evicting the least recently
// used entry on overflow.
func (c *Cache[V]) Put(key string, rowVersion uint64, value V) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(key, entry[V]{rowVersion: rowVersion, value: value})
}

// Invalidate evicts a single key, used by the cache coherency protocol
// when a sibling connection reports a mutation.
func (c *Cache[V]) Invalidate(key string) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Remove(key)
}

// InvalidateAll drops every cached entry, used for removeAllValues on
// the writing connection and for a delete-all delivered to a sibling.
func (c *Cache[V]) InvalidateAll() {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Purge()
}

// Len reports the number of cached entries.
func (c *Cache[V]) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
