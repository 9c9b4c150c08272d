package world

import (
	"context"

	"lorule-online/server/logging"
)

const (
	// EventHadronMerged is emitted when a client delta is accepted.
	EventHadronMerged logging.EventType = "world.hadron_merged"
	// EventUpdateRejected is emitted when a delta fails ownership or
	// validation. The sending client is never told; this event is the only
	// trace a dropped update leaves.
	EventUpdateRejected logging.EventType = "world.update_rejected"
	// EventResurrected is emitted when an identity's hadrons return to the
	// active partition.
	EventResurrected logging.EventType = "world.resurrected"
	// EventOrphansSwept is emitted when startup pruning removes archived
	// hadrons with no surviving account.
	EventOrphansSwept logging.EventType = "world.orphans_swept"
)

// MergedPayload identifies the hadron an accepted merge touched.
type MergedPayload struct {
	HadronID string `json:"hadronId"`
	Scene    string `json:"scene"`
}

// UpdateRejectedPayload identifies the hadron a dropped update targeted.
type UpdateRejectedPayload struct {
	HadronID string `json:"hadronId,omitempty"`
}

// SweptPayload reports how many archived hadrons were pruned.
type SweptPayload struct {
	Removed int `json:"removed"`
}

// Merged publishes an accepted merge event.
func Merged(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload MergedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHadronMerged,
		Sequence: seq,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryWorld,
		Payload:  payload,
		Extra:    extra,
	})
}

// UpdateRejected publishes a dropped update event.
func UpdateRejected(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload UpdateRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUpdateRejected,
		Sequence: seq,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryWorld,
		Payload:  payload,
		Extra:    extra,
	})
}

// Resurrected publishes a partition move back to active.
func Resurrected(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResurrected,
		Sequence: seq,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryWorld,
		Extra:    extra,
	})
}

// OrphansSwept publishes the startup pruning result.
func OrphansSwept(ctx context.Context, pub logging.Publisher, payload SweptPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventOrphansSwept,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryWorld,
		Payload:  payload,
	})
}
