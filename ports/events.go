package ports

import (
	"context"

	"github.com/flotob/curia-sub008/core"
)

// EventPublisher notifies external collaborators (presence, permission
// broadcast) of state changes. Publishing is best-effort from the engine's
// point of view; callers log failures rather than fail the operation.
type EventPublisher interface {
	PublishAccessEvaluated(ctx context.Context, decision *core.LockDecision) error
	PublishSessionRevoked(ctx context.Context, session *core.Session) error
}
