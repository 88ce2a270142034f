// ABOUTME: TTL-bounded cache of recently seen webhook delivery IDs
// ABOUTME: Protects against redelivered events being notified twice

package webhook

import (
	"sync"
	"time"
)

// seenCache remembers delivery IDs for a TTL so redeliveries can be dropped.
// Size-capped; pruning happens inline on insert, no background goroutine.
type seenCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]time.Time
}

func newSeenCache(ttl time.Duration, maxSize int) *seenCache {
	return &seenCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]time.Time),
	}
}

// checkAndMark reports whether id was already seen within the TTL, marking it
// as seen if not. Check and mark are one critical section so two concurrent
// deliveries of the same event cannot both pass.
func (c *seenCache) checkAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if at, ok := c.entries[id]; ok && now.Sub(at) < c.ttl {
		return true
	}

	if len(c.entries) >= c.maxSize {
		c.prune(now)
	}
	c.entries[id] = now
	return false
}

// prune drops expired entries, and if still at capacity evicts the oldest.
// Must be called with mu held.
func (c *seenCache) prune(now time.Time) {
	for id, at := range c.entries {
		if now.Sub(at) >= c.ttl {
			delete(c.entries, id)
		}
	}
	for len(c.entries) >= c.maxSize {
		var oldestID string
		var oldestAt time.Time
		for id, at := range c.entries {
			if oldestID == "" || at.Before(oldestAt) {
				oldestID, oldestAt = id, at
			}
		}
		delete(c.entries, oldestID)
	}
}
