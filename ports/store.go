package ports

import (
	"context"
	"time"

	"github.com/flotob/curia-sub008/core"
)

// ChallengeStore persists issued challenges for the length of their window.
type ChallengeStore interface {
	InsertChallenge(ctx context.Context, challenge *core.Challenge) error

	// GetChallenge returns core.ErrChallengeNotFound for unknown ids.
	GetChallenge(ctx context.Context, id string) (*core.Challenge, error)

	// ConsumeChallenge atomically flips the consumed flag. It returns
	// core.ErrChallengeConsumed if another call won the race and
	// core.ErrChallengeNotFound for unknown ids. Exactly one concurrent
	// caller may succeed per challenge.
	ConsumeChallenge(ctx context.Context, id string) error
}

// SessionStore persists session records keyed by their opaque token.
type SessionStore interface {
	InsertSession(ctx context.Context, token string, session *core.Session) error

	// GetSessionByToken returns core.ErrSessionNotFound for unknown tokens.
	GetSessionByToken(ctx context.Context, token string) (*core.Session, error)

	// TouchSession updates lastAccessedAt. Failures are non-fatal for the
	// caller and must not affect validation results.
	TouchSession(ctx context.Context, token string, at time.Time) error

	// RevokeSession marks the session inactive. Idempotent: revoking an
	// already revoked or unknown session is not an error.
	RevokeSession(ctx context.Context, sessionID string) error
}

// LockStore holds lock policy documents between evaluations.
type LockStore interface {
	PutLock(ctx context.Context, lock *core.Lock) error

	// GetLock returns core.ErrLockNotFound for unknown ids.
	GetLock(ctx context.Context, id string) (*core.Lock, error)
}
