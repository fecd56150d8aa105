// Package cache provides a bounded time-to-live map. It is constructed
// once at process start and passed by reference to whatever needs it,
// never held as ambient global state.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value   any
	expires time.Time
}

// TTL is a thread-safe bounded cache with per-entry expiry.
type TTL struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]entry
}

// New creates a cache holding at most maxEntries values for ttl each.
func New(ttl time.Duration, maxEntries int) *TTL {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &TTL{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]entry),
	}
}

// Get returns the cached value for key, or false if absent or expired.
func (c *TTL) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. When the cache is full, expired entries
// are dropped first; if still full, the entry closest to expiry is
// evicted.
func (c *TTL) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxEntries {
			var oldest string
			var oldestExpiry time.Time
			for k, e := range c.entries {
				if oldest == "" || e.expires.Before(oldestExpiry) {
					oldest = k
					oldestExpiry = e.expires
				}
			}
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = entry{value: value, expires: now.Add(c.ttl)}
}

// Delete removes key from the cache.
func (c *TTL) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, including any not yet reaped.
func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
