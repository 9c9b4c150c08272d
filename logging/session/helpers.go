package session

import (
	"context"

	"lorule-online/server/logging"
)

const (
	// EventStarted is emitted when an authenticated session comes online.
	EventStarted logging.EventType = "session.started"
	// EventRejected is emitted when a connection fails authentication.
	EventRejected logging.EventType = "session.rejected"
	// EventEnded is emitted when a session disconnects.
	EventEnded logging.EventType = "session.ended"
)

// StartedPayload captures the display name bound to a new session.
type StartedPayload struct {
	Name string `json:"name"`
}

// RejectedPayload captures why a connection was refused. The reason never
// reaches the client; it exists for the operator.
type RejectedPayload struct {
	Reason string `json:"reason"`
}

// EndedPayload captures why a session ended and how many hadrons it parked.
type EndedPayload struct {
	Reason   string `json:"reason"`
	Archived int    `json:"archived"`
}

// Started publishes a session start event.
func Started(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload StartedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStarted,
		Sequence: seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
	})
}

// Rejected publishes an authentication failure event.
func Rejected(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload RejectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRejected,
		Sequence: seq,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySession,
		Payload:  payload,
	})
}

// Ended publishes a session end event.
func Ended(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload EndedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEnded,
		Sequence: seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
	})
}
