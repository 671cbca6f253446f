// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authority

import (
	"context"
	"sync"
	"time"
)

// PropertyCache stores profile properties with a time-to-live. Entries are
// invalidated only by expiry.
type PropertyCache interface {
	Get(ctx context.Context, key string) ([]Property, bool)
	Set(ctx context.Context, key string, props []Property, ttl time.Duration)
}

type cacheEntry struct {
	props     []Property
	expiresAt time.Time
}

// sweepInterval is the number of Set calls between expired-entry sweeps.
const sweepInterval = 256

// MemoryCache is an in-process PropertyCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	sets    int
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached properties if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]Property, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return CloneProperties(entry.props), true
}

// Set stores a copy of props under key.
func (c *MemoryCache) Set(_ context.Context, key string, props []Property, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = cacheEntry{
		props:     CloneProperties(props),
		expiresAt: now.Add(ttl),
	}

	c.sets++
	if c.sets%sweepInterval == 0 {
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
