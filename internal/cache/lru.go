// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package cache

import (
	"sync"
	"time"
)

// lruEntry is a node of the LRU list. A zero expiresAt never expires.
type lruEntry[V any] struct {
	key       string
	value     V
	prev      *lruEntry[V]
	next      *lruEntry[V]
	expiresAt time.Time
}

func (e *lruEntry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// LRU is a thread-safe Least Recently Used map with per-entry TTL.
// It provides O(1) Get, Set and eviction.
//
// Key features:
//   - Per-entry expiry (zero TTL means no expiry), lazily enforced
//   - Optional eviction guard: entries the guard rejects are skipped by
//     capacity eviction and idle cleanup
//   - Optional eviction callback
//   - Atomic read-modify-write through Mutate
//
// This implementation uses a doubly-linked list for ordering and a hashmap for lookups.
type LRU[V any] struct {
	mu sync.Mutex

	capacity int

	// items maps keys to linked list nodes for O(1) lookup
	items map[string]*lruEntry[V]

	// head.next is the most recently used, tail.prev is the least recently used
	head *lruEntry[V]
	tail *lruEntry[V]

	canEvict func(key string, value V) bool
	onEvict  func(key string, value V)

	hits      int64
	misses    int64
	evictions int64
}

// LRUOption configures an LRU.
type LRUOption[V any] func(*LRU[V])

// WithEvictionGuard installs a guard consulted before an entry is evicted
// for capacity or idleness. Returning false keeps the entry.
func WithEvictionGuard[V any](guard func(key string, value V) bool) LRUOption[V] {
	return func(c *LRU[V]) { c.canEvict = guard }
}

// WithEvictCallback installs a callback run (under the lock) whenever an
// entry is evicted for capacity. Explicit removals do not trigger it.
func WithEvictCallback[V any](fn func(key string, value V)) LRUOption[V] {
	return func(c *LRU[V]) { c.onEvict = fn }
}

// NewLRU creates an LRU holding at most capacity entries (soft limit when
// a guard pins entries).
func NewLRU[V any](capacity int, opts ...LRUOption[V]) *LRU[V] {
	if capacity <= 0 {
		capacity = 10000
	}

	c := &LRU[V]{
		capacity: capacity,
		items:    make(map[string]*lruEntry[V], min(capacity, 1024)),
		head:     &lruEntry[V]{},
		tail:     &lruEntry[V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a live entry and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.liveEntry(key, time.Now()); ok {
		c.moveToFront(entry)
		c.hits++
		return entry.value, true
	}

	c.misses++
	var zero V
	return zero, false
}

// Contains reports whether a live entry exists without updating access order.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.liveEntry(key, time.Now())
	return ok
}

// Set adds or replaces an entry. ttl <= 0 means no expiry.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(key, value, expiry(time.Now(), ttl))
}

// SetIfAbsent stores value only when no live entry exists for key.
func (c *LRU[V]) SetIfAbsent(key string, value V, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.liveEntry(key, now); ok {
		return false
	}
	c.setLocked(key, value, expiry(now, ttl))
	return true
}

// GetOrAdd returns the live entry for key, creating it with create when
// missing. Each call slides the entry's expiry to now+ttl, so ttl acts as
// an idle timeout.
func (c *LRU[V]) GetOrAdd(key string, ttl time.Duration, create func() V) V {
	return c.GetOrAddThen(key, ttl, create, nil)
}

// GetOrAddThen is GetOrAdd with then applied to the value before the lock
// is released. Callers use it to pin an entry (through the eviction guard)
// atomically with the lookup.
func (c *LRU[V]) GetOrAddThen(key string, ttl time.Duration, create func() V, then func(V)) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.liveEntry(key, now); ok {
		entry.expiresAt = expiry(now, ttl)
		c.moveToFront(entry)
		c.hits++
		if then != nil {
			then(entry.value)
		}
		return entry.value
	}

	c.misses++
	value := create()
	if then != nil {
		then(value)
	}
	c.setLocked(key, value, expiry(now, ttl))
	return value
}

// Mutate atomically replaces the value for key with fn(old, exists).
// A new entry gets ttlIfNew; an existing live entry keeps its expiry.
func (c *LRU[V]) Mutate(key string, ttlIfNew time.Duration, fn func(old V, exists bool) (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.liveEntry(key, now); ok {
		next, err := fn(entry.value, true)
		if err != nil {
			return entry.value, err
		}
		entry.value = next
		c.moveToFront(entry)
		return next, nil
	}

	var zero V
	next, err := fn(zero, false)
	if err != nil {
		return zero, err
	}
	c.setLocked(key, next, expiry(now, ttlIfNew))
	return next, nil
}

// Remove removes an entry. Returns true if a live entry was removed.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		live := !entry.expired(time.Now())
		c.removeEntry(entry)
		return live
	}
	return false
}

// RemoveFunc removes every live entry whose key matches and returns the count.
func (c *LRU[V]) RemoveFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if entry.expired(now) {
			c.removeEntry(entry)
		} else if match(entry.key) {
			c.removeEntry(entry)
			removed++
		}
		entry = prev
	}
	return removed
}

// Len returns the current number of entries, including expired ones not yet
// cleaned up.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries from the cache.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*lruEntry[V], min(c.capacity, 1024))
	c.head.next = c.tail
	c.tail.prev = c.head
}

// CleanupExpired removes expired entries the guard allows to go.
// Returns the number of entries removed.
func (c *LRU[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	// Walk from tail (oldest) to head (newest)
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if entry.expired(now) && c.evictable(entry) {
			c.removeEntry(entry)
			removed++
		}
		entry = prev
	}

	return removed
}

// Stats returns cache hit/miss/eviction statistics.
func (c *LRU[V]) Stats() (hits, misses, evictions int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions, len(c.items)
}

// Internal methods (must be called with lock held)

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// liveEntry returns the entry for key, dropping it when expired. Expired
// entries pinned by the guard stay live.
func (c *LRU[V]) liveEntry(key string, now time.Time) (*lruEntry[V], bool) {
	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if entry.expired(now) {
		if c.evictable(entry) {
			c.removeEntry(entry)
			return nil, false
		}
		// Pinned: treat as live so callers keep sharing the same value.
		return entry, true
	}
	return entry, true
}

func (c *LRU[V]) setLocked(key string, value V, expiresAt time.Time) {
	if entry, ok := c.items[key]; ok {
		entry.value = value
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry[V]{key: key, value: value, expiresAt: expiresAt}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		if !c.evictOldest() {
			break
		}
	}
}

func (c *LRU[V]) evictable(entry *lruEntry[V]) bool {
	return c.canEvict == nil || c.canEvict(entry.key, entry.value)
}

// addToFront adds an entry to the front of the list (most recently used).
func (c *LRU[V]) addToFront(entry *lruEntry[V]) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

// moveToFront moves an existing entry to the front of the list.
func (c *LRU[V]) moveToFront(entry *lruEntry[V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

// removeEntry removes an entry from both the list and the map.
func (c *LRU[V]) removeEntry(entry *lruEntry[V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

// evictOldest removes the least recently used evictable entry. Returns
// false when every entry is pinned.
func (c *LRU[V]) evictOldest() bool {
	for entry := c.tail.prev; entry != c.head; entry = entry.prev {
		if !c.evictable(entry) {
			continue
		}
		c.removeEntry(entry)
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(entry.key, entry.value)
		}
		return true
	}
	return false
}
