package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flotob/curia-sub008/core"
)

// retentionGrace keeps expired records around long enough to report
// "expired" instead of "not found" to late callers.
const retentionGrace = time.Hour

// consumeScript flips the consumed flag atomically, preserving the key's
// remaining TTL. A key that somehow lost its TTL gets the retention grace
// (ARGV[1], milliseconds) instead of living forever. Returns -1 for unknown
// ids, 0 when already consumed, 1 on success.
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return -1 end
local ch = cjson.decode(v)
if ch["consumed"] then return 0 end
ch["consumed"] = true
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then ttl = tonumber(ARGV[1]) end
redis.call("SET", KEYS[1], cjson.encode(ch), "PX", ttl)
return 1
`)

// touchScript and revokeScript rewrite one field of the session record inside
// the server, so a touch can never interleave with a revocation and write a
// stale isActive back.
var touchScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local s = cjson.decode(v)
s["lastAccessedAt"] = ARGV[1]
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then ttl = tonumber(ARGV[2]) end
redis.call("SET", KEYS[1], cjson.encode(s), "PX", ttl)
return 1
`)

var revokeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local s = cjson.decode(v)
s["isActive"] = false
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then ttl = tonumber(ARGV[1]) end
redis.call("SET", KEYS[1], cjson.encode(s), "PX", ttl)
return 1
`)

// RedisStore implements the challenge, session and lock stores on Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "curia:",
	}
}

func (s *RedisStore) challengeKey(id string) string  { return s.prefix + "challenge:" + id }
func (s *RedisStore) sessionKey(token string) string { return s.prefix + "session:" + token }
func (s *RedisStore) sessionIDKey(id string) string  { return s.prefix + "session_id:" + id }
func (s *RedisStore) lockKey(id string) string       { return s.prefix + "lock:" + id }

func (s *RedisStore) InsertChallenge(ctx context.Context, challenge *core.Challenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}
	ttl := time.Until(challenge.ExpiresAt) + retentionGrace
	if err := s.client.Set(ctx, s.challengeKey(challenge.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *RedisStore) GetChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	payload, err := s.client.Get(ctx, s.challengeKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, core.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	var challenge core.Challenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return &challenge, nil
}

func (s *RedisStore) ConsumeChallenge(ctx context.Context, id string) error {
	res, err := consumeScript.Run(ctx, s.client, []string{s.challengeKey(id)},
		retentionGrace.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	switch res {
	case -1:
		return core.ErrChallengeNotFound
	case 0:
		return core.ErrChallengeConsumed
	}
	return nil
}

func (s *RedisStore) InsertSession(ctx context.Context, token string, session *core.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt) + retentionGrace
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(token), payload, ttl)
	pipe.Set(ctx, s.sessionIDKey(session.ID), token, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *RedisStore) GetSessionByToken(ctx context.Context, token string) (*core.Session, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	var session core.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) TouchSession(ctx context.Context, token string, at time.Time) error {
	res, err := touchScript.Run(ctx, s.client, []string{s.sessionKey(token)},
		at.UTC().Format(time.RFC3339Nano), retentionGrace.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if res == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) RevokeSession(ctx context.Context, sessionID string) error {
	token, err := s.client.Get(ctx, s.sessionIDKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if _, err := revokeScript.Run(ctx, s.client, []string{s.sessionKey(token)},
		retentionGrace.Milliseconds()).Int(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *RedisStore) PutLock(ctx context.Context, lock *core.Lock) error {
	payload, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := s.client.Set(ctx, s.lockKey(lock.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *RedisStore) GetLock(ctx context.Context, id string) (*core.Lock, error) {
	payload, err := s.client.Get(ctx, s.lockKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, core.ErrLockNotFound
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	var lock core.Lock
	if err := json.Unmarshal(payload, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}
	return &lock, nil
}
