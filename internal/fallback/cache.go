// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package fallback holds the last-known-good analytics payloads served
// when the real computation fails. Entries expire per-entry by TTL;
// expired entries are deleted lazily by the read that discovers them,
// with Sweep available for bulk maintenance. There is no size-based
// eviction: the key space (analytics kind x symbol) is bounded.
package fallback

import (
	"sync"
	"time"
)

type entry struct {
	payload  any
	storedAt time.Time
	ttl      time.Duration
}

// Cache is a TTL map safe for concurrent use. Payloads are treated as
// immutable once stored; callers must not mutate what they Put or Get.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	nowFunc func() time.Time // for testing
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// Put stores payload under key, unconditionally replacing any previous
// entry. An entry expires once now minus its store time reaches ttl, so
// a non-positive ttl stores an entry that is already expired.
func (c *Cache) Put(key string, payload any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{
		payload:  payload,
		storedAt: c.nowFunc(),
		ttl:      ttl,
	}
	c.mu.Unlock()
}

// Get returns the payload for key if present and fresh. A read that
// discovers an expired entry deletes it, so Get takes the write lock.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.expiredLocked(e) {
		delete(c.entries, key)
		return nil, false
	}

	return e.payload, true
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.expiredLocked(e) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
// until a read or sweep evicts them.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// expiredLocked reports whether e has outlived its TTL. The caller MUST
// hold at least c.mu.RLock.
func (c *Cache) expiredLocked(e entry) bool {
	return c.nowFunc().Sub(e.storedAt) >= e.ttl
}

// SetNowFunc overrides the time source (for testing).
func (c *Cache) SetNowFunc(fn func() time.Time) {
	c.mu.Lock()
	c.nowFunc = fn
	c.mu.Unlock()
}
