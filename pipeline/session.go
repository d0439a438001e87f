package pipeline

import "duelcore/kernel"

// inputSlot is one ring cell. tick disambiguates a live value from stale
// data left behind by a previous lap around the ring; occupied tracks
// whether any message has merged into this lap's slot yet.
type inputSlot struct {
	tick     uint64
	occupied bool
	maxSeq   uint64
	moveDir  kernel.Vec2
	tied     bool
}

// sessionAdmission is one session's admission state: last-known intent,
// the greatest previously-admitted tick, a floor field (the start tick at
// registration, then the last tick Consume finalized; Admit does not read
// it), and the bounded ring of per-tick slots.
type sessionAdmission struct {
	playerID uint64
	bound    bool

	lastKnownIntent kernel.Vec2

	hasLastValidTick bool
	lastValidCmdTick uint64

	lastEmittedFloor uint64

	hasLastInputSeq bool
	lastInputSeq    uint64

	window     []inputSlot
	rateCounts []uint32
}

func newSessionAdmission(playerID uint64, windowSize int) *sessionAdmission {
	if windowSize < 1 {
		windowSize = 1
	}
	return &sessionAdmission{
		playerID:   playerID,
		window:     make([]inputSlot, windowSize),
		rateCounts: make([]uint32, windowSize),
	}
}

func (s *sessionAdmission) slotIndex(tick uint64) int {
	return int(tick % uint64(len(s.window)))
}

// slotFor returns the slot and rate counter for tick, resetting both if the
// ring cell currently holds a stale lap's data (its stored tick differs
// from the requested one).
func (s *sessionAdmission) slotFor(tick uint64) (*inputSlot, *uint32) {
	idx := s.slotIndex(tick)
	slot := &s.window[idx]
	if slot.tick != tick {
		*slot = inputSlot{tick: tick}
		s.rateCounts[idx] = 0
	}
	return slot, &s.rateCounts[idx]
}

// merge applies the slot evolution rule: a strictly greater input_seq
// replaces the slot's direction, an equal seq marks the slot tied, and a
// lesser seq is ignored for selection.
func (slot *inputSlot) merge(seq uint64, dir kernel.Vec2) {
	switch {
	case !slot.occupied || seq > slot.maxSeq:
		slot.moveDir = dir
		slot.maxSeq = seq
		slot.tied = false
		slot.occupied = true
	case seq == slot.maxSeq:
		slot.tied = true
	default:
		// seq < maxSeq: ignored for selection.
	}
}

// consume returns the slot for tick if it was ever written this lap and
// clears it so the ring cell can be reused for a future lap.
func (s *sessionAdmission) consume(tick uint64) (inputSlot, bool) {
	idx := s.slotIndex(tick)
	slot := s.window[idx]
	if slot.tick != tick || !slot.occupied {
		return inputSlot{}, false
	}
	s.window[idx] = inputSlot{}
	return slot, true
}
