// Package cache memoizes slow-changing upstream lookups, such as the
// team rosters the game-log adapter resolves once per team and reuses
// for every player on it. Entries expire after a TTL and a capacity
// bound evicts the oldest insertion once the cache fills. Game data is
// never cached here: it lands in Postgres, and raw payloads go to the
// archive.
package cache

import (
	"sync"
	"time"
)

const (
	defaultTTL        = 30 * time.Second
	defaultMaxEntries = 1000
)

// Options bounds a Cache. Zero values fall back to 30s and 1000
// entries.
type Options struct {
	TTL        time.Duration
	MaxEntries int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL cache with insertion-order eviction.
type Cache[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]entry[V]
	order      []K // insertion order, oldest first
	ttl        time.Duration
	maxEntries int
}

// New builds a Cache from opts.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:    make(map[K]entry[V]),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.maxEntries <= 0 {
		c.maxEntries = defaultMaxEntries
	}
	return c
}

// Get returns the live value for key. Expired entries read as absent
// and are dropped on the way out.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		c.remove(key)
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores key with a fresh TTL. Overwriting keeps the key's original
// position in eviction order. At capacity, expired entries are dropped
// first and the oldest insertion after that.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	if _, ok := c.entries[key]; ok {
		c.entries[key] = e
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.dropExpired()
	}
	if len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = e
	c.order = append(c.order, key)
}

// Len counts entries, expired ones included until a Get touches them.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// remove deletes key from the map and the order slice. Caller holds the
// write lock.
func (c *Cache[K, V]) remove(key K) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// dropExpired deletes every expired entry. Caller holds the write lock.
func (c *Cache[K, V]) dropExpired() {
	now := time.Now()
	kept := c.order[:0]
	for _, k := range c.order {
		if e, ok := c.entries[k]; ok && now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}
