// Package bus provides event bus implementations for run lifecycle events.
// Subscribers (dashboards, log tails, CI hooks) observe run progress without
// polling the API.
package bus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations. Publishing is
// fire-and-forget; run state lives in the store, so a lost event never
// loses data.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "run.started").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix seconds).
	Timestamp int64 `json:"timestamp"`

	// RunID and SuiteID identify the run the event belongs to.
	RunID   string `json:"run_id,omitempty"`
	SuiteID string `json:"suite_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload,omitempty"`
}

// Run lifecycle topics.
const (
	TopicRunCreated   = "run.created"
	TopicRunStarted   = "run.started"
	TopicRunQuestion  = "run.question.completed"
	TopicRunCompleted = "run.completed"
	TopicRunFailed    = "run.failed"
)

// NewEvent creates an event with a fresh id and current timestamp.
func NewEvent(eventType, source, runID, suiteID string, payload any) Event {
	return Event{
		ID:        newEventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().Unix(),
		RunID:     runID,
		SuiteID:   suiteID,
		Payload:   payload,
	}
}

func newEventID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "evt-unknown"
	}
	return hex.EncodeToString(b)
}
