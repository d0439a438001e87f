// Package admission publishes telemetry for the input admission pipeline:
// per-message validation outcomes and the tick-boundary selection result.
package admission

import (
	"context"

	"duelcore/logging"
)

const (
	// EventInputDropped is emitted when a message fails a validation check
	// before it reaches a per-(player, tick) slot.
	EventInputDropped logging.EventType = "admission.input_dropped"
	// EventInputNormalized is emitted when an over-unit move_dir is rescaled
	// to unit length rather than dropped.
	EventInputNormalized logging.EventType = "admission.input_normalized"
	// EventSlotSelected is emitted at the tick boundary when a non-fallback
	// applied input is produced from a slot.
	EventSlotSelected logging.EventType = "admission.slot_selected"
	// EventFallbackApplied is emitted at the tick boundary when a player's
	// last-known intent is used because no slot resolved cleanly.
	EventFallbackApplied logging.EventType = "admission.fallback_applied"
)

// DropReason enumerates the validation checks that can reject a message.
type DropReason string

const (
	ReasonBeforeHandshake DropReason = "before_handshake"
	ReasonShapeInvalid    DropReason = "shape_invalid"
	ReasonFloorViolation  DropReason = "floor_violation"
	ReasonNonMonotonic    DropReason = "non_monotonic_tick"
	ReasonOutsideWindow   DropReason = "outside_acceptance_window"
	ReasonRateLimited     DropReason = "rate_limited"
	ReasonStaleSeq        DropReason = "stale_input_seq"
)

// DroppedPayload captures why a message never reached a slot.
type DroppedPayload struct {
	Tick     uint64     `json:"tick"`
	PlayerID uint64     `json:"playerId"`
	InputSeq uint64     `json:"inputSeq"`
	Reason   DropReason `json:"reason"`
}

// InputDropped publishes a debug event describing a rejected message.
func InputDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DroppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInputDropped,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "admission",
		Payload:  payload,
		Extra:    extra,
	})
}

// NormalizedPayload captures an over-unit move_dir rescale.
type NormalizedPayload struct {
	Tick      uint64  `json:"tick"`
	PlayerID  uint64  `json:"playerId"`
	Magnitude float64 `json:"magnitude"`
}

// InputNormalized publishes a debug event describing a rescaled move_dir.
func InputNormalized(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload NormalizedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInputNormalized,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "admission",
		Payload:  payload,
		Extra:    extra,
	})
}

// SelectionPayload describes the applied input chosen for a (player, tick).
type SelectionPayload struct {
	Tick       uint64 `json:"tick"`
	PlayerID   uint64 `json:"playerId"`
	IsFallback bool   `json:"isFallback"`
}

// SlotSelected publishes a debug event when a slot's intent is applied.
func SlotSelected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SelectionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSlotSelected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "admission",
		Payload:  payload,
		Extra:    extra,
	})
}

// FallbackApplied publishes a debug event when last-known intent is used.
func FallbackApplied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SelectionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFallbackApplied,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "admission",
		Payload:  payload,
		Extra:    extra,
	})
}
