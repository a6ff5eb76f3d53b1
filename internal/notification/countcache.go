package notification

import (
	"sync"
	"time"
)

type countEntry struct {
	count     int64
	expiresAt time.Time
}

// CountCache holds each user's unread count with a short TTL. Every
// notification mutation for a user invalidates only that user's entry.
type CountCache struct {
	mu      sync.Mutex
	entries map[int64]countEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewCountCache(ttl time.Duration) *CountCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CountCache{
		entries: make(map[int64]countEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *CountCache) Get(userID int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[userID]
	if !ok {
		return 0, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, userID)
		return 0, false
	}
	return entry.count, true
}

func (c *CountCache) Set(userID, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = countEntry{count: count, expiresAt: c.now().Add(c.ttl)}
}

func (c *CountCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
