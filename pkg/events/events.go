// Package events publishes admission lifecycle notifications to downstream systems.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Event types.
const (
	TypeAdmissionApproved = "admission.approved"
	TypeAdmissionRejected = "admission.rejected"
)

// Event is the JSON envelope written to every transport.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to the logger; used in development.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs the publisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("event published",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("key", event.Key),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
