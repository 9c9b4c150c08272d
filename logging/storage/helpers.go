package storage

import (
	"context"

	"lorule-online/server/logging"
)

const (
	// EventFlushed is emitted after the hadron file is rewritten.
	EventFlushed logging.EventType = "storage.flushed"
	// EventFlushFailed is emitted when a save attempt errors. The live
	// session layer keeps running; the saver retries on the next schedule.
	EventFlushFailed logging.EventType = "storage.flush_failed"
)

// FlushedPayload reports the size of the persisted mapping.
type FlushedPayload struct {
	Hadrons int `json:"hadrons"`
}

// FlushFailedPayload carries the save error text.
type FlushFailedPayload struct {
	Error string `json:"error"`
}

// Flushed publishes a successful save event.
func Flushed(ctx context.Context, pub logging.Publisher, payload FlushedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFlushed,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryStorage,
		Payload:  payload,
	})
}

// FlushFailed publishes a failed save event.
func FlushFailed(ctx context.Context, pub logging.Publisher, payload FlushFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFlushFailed,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityError,
		Category: logging.CategoryStorage,
		Payload:  payload,
	})
}
