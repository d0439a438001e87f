// Package pipeline turns an unreliable, untrusted stream of per-tick client
// intents into exactly one applied input per player per tick. It sits
// between the transport and the kernel: messages are validated and merged
// into per-(player, tick) slots as they arrive, and exactly one
// AppliedInput per registered session is produced when the tick boundary
// is consumed.
//
// The admission slot window is a fixed-size ring indexed by tick modulo
// window size, so per-session storage stays bounded no matter how far
// ahead a client tries to buffer.
package pipeline

import "duelcore/kernel"

// RawInput is a single client intent message as received from the
// transport, before identity binding or validation. The wire protocol
// carries no player id field — the session the message arrived on supplies
// that — so RawInput doesn't either.
type RawInput struct {
	Tick     uint64
	InputSeq uint64
	MoveDir  kernel.Vec2
}

// AppliedInput is the single, server-chosen, per-(player, tick) intent
// that was actually passed to the kernel; it is what the replay records.
type AppliedInput struct {
	Tick       uint64
	PlayerID   uint64
	MoveDir    kernel.Vec2
	IsFallback bool
}

// DropReason mirrors the admission validation checks in logging/admission
// so callers can branch on why a message was rejected without importing
// the logging package themselves.
type DropReason = string

const (
	ReasonBeforeHandshake DropReason = "before_handshake"
	ReasonShapeInvalid    DropReason = "shape_invalid"
	ReasonFloorViolation  DropReason = "floor_violation"
	ReasonNonMonotonic    DropReason = "non_monotonic_tick"
	ReasonOutsideWindow   DropReason = "outside_acceptance_window"
	ReasonRateLimited     DropReason = "rate_limited"
)
