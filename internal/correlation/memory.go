package correlation

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache with timestamp-based eviction. It is
// used by unit tests and by local runs without a Redis instance; entries do
// not survive a restart, which the correlation design already tolerates.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[uint32]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[uint32]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Put(_ context.Context, identifier uint32, entry Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired()
	c.entries[identifier] = memoryEntry{entry: entry, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, identifier uint32) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[identifier]
	if !ok || c.now().After(e.expiresAt) {
		return Entry{}, false, nil
	}
	return e.entry, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, identifier uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identifier)
	return nil
}

// evictExpired must be called with the lock held.
func (c *MemoryCache) evictExpired() {
	now := c.now()
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}
