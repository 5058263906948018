package ports

import (
	"context"
	"time"

	"github.com/flotob/curia-sub008/core"
)

// VerdictCache memoizes lock decisions per (identity, lock) pair for a short
// TTL so repeated UI polling does not re-issue chain queries. Last-writer-wins
// is acceptable: verdicts are idempotently recomputable.
type VerdictCache interface {
	Get(ctx context.Context, identity, lockID string) (*core.LockDecision, bool, error)
	Put(ctx context.Context, identity, lockID string, decision *core.LockDecision, ttl time.Duration) error
}
