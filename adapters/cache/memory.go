package cache

import (
	"context"
	"sync"
	"time"

	"github.com/flotob/curia-sub008/core"
)

type entry struct {
	decision  *core.LockDecision
	expiresAt time.Time
}

// MemoryCache memoizes lock decisions in process memory. Entries expire
// lazily on read; the key space (identity × lock) is small and self-expiring,
// so there is no sizing pressure.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryCache creates a new in-memory verdict cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

func cacheKey(identity, lockID string) string {
	return identity + "|" + lockID
}

func (c *MemoryCache) Get(ctx context.Context, identity, lockID string) (*core.LockDecision, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[cacheKey(identity, lockID)]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.decision, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, identity, lockID string, decision *core.LockDecision, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(identity, lockID)] = entry{
		decision:  decision,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
