package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	country   string
	expiresAt time.Time
}

// Cache is an in-process TTL cache. Expired entries are never returned and
// are removed by Sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func New() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

// NewWithClock is used by tests that need to move time.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{entries: make(map[string]entry), now: now}
}

func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.country, true, nil
}

func (c *Cache) Set(_ context.Context, key, country string, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = entry{country: country, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Sweep deletes expired entries and returns how many were removed.
func (c *Cache) Sweep(_ context.Context) (int, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
