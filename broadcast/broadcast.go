// Package broadcast serializes a post-step snapshot exactly once per tick
// and fans out the identical byte slice to every bound session, tracking
// each session's monotonically non-decreasing floor. Marshaling once and
// sharing the bytes rules out any per-session divergence in what clients
// observe for a given tick; entity ordering inside the payload is already
// canonical (ascending entity id) by kernel construction.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sort"

	"duelcore/kernel"
)

// WireSnapshot is the over-the-wire representation of a kernel snapshot:
// tick, ordered entity records, digest, and the floor the receiving
// session must observe. It is serialized exactly once per tick and the
// resulting bytes are handed unmodified to every session.
type WireSnapshot struct {
	Tick            uint64                `json:"tick"`
	Entities        []kernel.EntityRecord `json:"entities"`
	Digest          uint64                `json:"digest"`
	TargetTickFloor uint64                `json:"targetTickFloor"`
}

// Floor computes the floor for a snapshot taken at postStepTick:
// postStepTick + inputLeadTicks.
func Floor(postStepTick uint64, inputLeadTicks uint64) uint64 {
	return postStepTick + inputLeadTicks
}

// Fanout serializes one Snapshot's worth of state exactly once and tracks,
// per session, the floor value it was last handed — enforcing the
// monotonic-floor invariant server-side as a defensive check (a client is
// expected to do this too, but a decreasing floor emitted by the server
// itself is a programming error, not tolerable protocol noise).
type Fanout struct {
	inputLeadTicks uint64
	lastFloor      map[uint64]uint64
}

// NewFanout constructs a Fanout with the match's fixed input lead.
func NewFanout(inputLeadTicks uint64) *Fanout {
	return &Fanout{
		inputLeadTicks: inputLeadTicks,
		lastFloor:      make(map[uint64]uint64),
	}
}

// Prepare serializes snap once into a WireSnapshot payload and the bytes
// that will be handed identically to every session. sessionIDs is used only
// to validate the monotonic-floor invariant per session; Prepare does not
// perform any per-session transformation of the bytes.
func (f *Fanout) Prepare(snap kernel.Snapshot, sessionIDs []uint64) ([]byte, error) {
	floor := Floor(snap.Tick, f.inputLeadTicks)

	wire := WireSnapshot{
		Tick:            snap.Tick,
		Entities:        snap.Entities,
		Digest:          snap.Digest,
		TargetTickFloor: floor,
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("broadcast: marshal snapshot: %w", err)
	}

	ids := append([]uint64(nil), sessionIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if prev, ok := f.lastFloor[id]; ok && floor < prev {
			return nil, fmt.Errorf("broadcast: floor regression for session %d: %d < %d", id, floor, prev)
		}
		f.lastFloor[id] = floor
	}

	return payload, nil
}

// WelcomeFloor computes ServerWelcome.target_tick_floor at match start:
// 0 + input_lead_ticks.
func (f *Fanout) WelcomeFloor() uint64 {
	return Floor(0, f.inputLeadTicks)
}

// LastFloor returns the most recent floor handed to sessionID, or 0 if none
// has been emitted yet.
func (f *Fanout) LastFloor(sessionID uint64) uint64 {
	return f.lastFloor[sessionID]
}
