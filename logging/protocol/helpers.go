// Package protocol publishes telemetry for protocol violations that are
// logged but tolerated: non-monotonic input_seq, repeated ties at a slot,
// and stale floor observations.
package protocol

import (
	"context"

	"duelcore/logging"
)

const (
	// EventSeqNonMonotonic is emitted when an input_seq does not strictly
	// increase for a session.
	EventSeqNonMonotonic logging.EventType = "protocol.seq_non_monotonic"
	// EventTieAtSlot is emitted when a slot's selection is tied and the
	// consumer must fall back to last-known intent.
	EventTieAtSlot logging.EventType = "protocol.tie_at_slot"
	// EventStaleFloor is emitted when a client reports a tick below the
	// floor it was most recently given.
	EventStaleFloor logging.EventType = "protocol.stale_floor"
)

// SeqPayload captures the previous and observed input_seq values.
type SeqPayload struct {
	Previous uint64 `json:"previous"`
	Observed uint64 `json:"observed"`
}

// SeqNonMonotonic publishes a warn event for a non-increasing input_seq.
func SeqNonMonotonic(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SeqPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSeqNonMonotonic,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "protocol",
		Payload:  payload,
		Extra:    extra,
	})
}

// TiePayload identifies the tied tick slot.
type TiePayload struct {
	Tick     uint64 `json:"tick"`
	PlayerID uint64 `json:"playerId"`
	MaxSeq   uint64 `json:"maxSeq"`
}

// TieAtSlot publishes a warn event describing a dropped tied selection.
func TieAtSlot(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TiePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTieAtSlot,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "protocol",
		Payload:  payload,
		Extra:    extra,
	})
}

// FloorPayload captures the observed tick against the enforced floor.
type FloorPayload struct {
	Observed uint64 `json:"observed"`
	Floor    uint64 `json:"floor"`
}

// StaleFloor publishes a warn event for a tick below the enforced floor.
func StaleFloor(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FloorPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStaleFloor,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "protocol",
		Payload:  payload,
		Extra:    extra,
	})
}
