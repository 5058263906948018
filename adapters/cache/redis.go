package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flotob/curia-sub008/core"
)

// RedisCache memoizes lock decisions in Redis so every instance sees the
// same short-lived verdicts. Eviction is TTL-based; writes are
// last-writer-wins.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a new Redis-backed verdict cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "curia:verdict:",
	}
}

func (c *RedisCache) key(identity, lockID string) string {
	return c.prefix + identity + "|" + lockID
}

func (c *RedisCache) Get(ctx context.Context, identity, lockID string) (*core.LockDecision, bool, error) {
	payload, err := c.client.Get(ctx, c.key(identity, lockID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	var decision core.LockDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached verdict: %w", err)
	}
	return &decision, true, nil
}

func (c *RedisCache) Put(ctx context.Context, identity, lockID string, decision *core.LockDecision, ttl time.Duration) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}
	if err := c.client.Set(ctx, c.key(identity, lockID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}
