package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/flotob/curia-sub008/core"
	"github.com/flotob/curia-sub008/ports"
)

const (
	// AccessEvaluatedTopic carries lock decisions to downstream consumers
	// (presence, permission broadcast).
	AccessEvaluatedTopic = "curia.access.evaluated"

	// SessionRevokedTopic notifies other instances that a session died.
	SessionRevokedTopic = "curia.session.revoked"
)

// AccessEvaluatedEvent is the wire form of a published lock decision.
type AccessEvaluatedEvent struct {
	LockID   string `json:"lock_id"`
	Identity string `json:"identity"`
	Granted  bool   `json:"granted"`
}

// SessionRevokedEvent is the wire form of a session revocation.
type SessionRevokedEvent struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id,omitempty"`
	IdentityType string `json:"identity_type,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishAccessEvaluated(ctx context.Context, decision *core.LockDecision) error {
	event := AccessEvaluatedEvent{
		LockID:   decision.LockID,
		Identity: decision.Identity,
		Granted:  decision.Granted,
	}
	return p.publish(AccessEvaluatedTopic, decision.LockID+"|"+decision.Identity, event)
}

func (p *WatermillPublisher) PublishSessionRevoked(ctx context.Context, session *core.Session) error {
	event := SessionRevokedEvent{
		SessionID:    session.ID,
		UserID:       session.UserID,
		IdentityType: string(session.IdentityType),
	}
	return p.publish(SessionRevokedTopic, session.ID, event)
}

func (p *WatermillPublisher) publish(topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := message.NewMessage(id, payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
