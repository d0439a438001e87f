package pipeline

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"

	"duelcore/kernel"
	"duelcore/logging"
	"duelcore/logging/admission"
	"duelcore/logging/protocol"
)

const entityKindPlayer logging.EntityKind = "player"

func playerRef(playerID uint64) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatUint(playerID, 10), Kind: entityKindPlayer}
}

// Config tunes the admission pipeline's windows and limits. All fields are
// fixed at construction; the pipeline does not support reconfiguration
// mid-match, matching the kernel's immutable tick rate.
type Config struct {
	// TickRateHz is the kernel's fixed simulation rate, used to convert
	// InputRateLimitPerSec into a per-tick admission budget.
	TickRateHz int

	// MaxFutureTicks bounds how far ahead of the current floor a message's
	// tick may sit and still be admitted. Messages beyond the window are
	// dropped as ReasonOutsideWindow.
	MaxFutureTicks uint64

	// InputRateLimitPerSec bounds how many input messages a single session
	// may have admitted for a single tick, expressed as a per-second budget
	// converted to ceil(rate/tick_rate_hz) per (session, tick).
	InputRateLimitPerSec int
}

func (c Config) perTickRateLimit() uint32 {
	if c.TickRateHz <= 0 || c.InputRateLimitPerSec <= 0 {
		return 1
	}
	limit := int(math.Ceil(float64(c.InputRateLimitPerSec) / float64(c.TickRateHz)))
	if limit < 1 {
		limit = 1
	}
	return uint32(limit)
}

func (c Config) windowSize() int {
	return int(c.MaxFutureTicks) + 1
}

// Pipeline admits raw client input messages into per-(player, tick) slots
// and, once a tick boundary is consumed, emits exactly one AppliedInput per
// registered session. It is the sole authority over which input the kernel
// ever sees.
type Pipeline struct {
	cfg     Config
	rateCap uint32
	pub     logging.Publisher

	mu       sync.Mutex
	sessions map[uint64]*sessionAdmission
	order    []uint64 // player ids in ascending order, for deterministic Consume
	floor    uint64
}

// NewPipeline constructs a Pipeline. pub may be nil, in which case the
// admission/protocol helpers are called with a NopPublisher.
func NewPipeline(cfg Config, pub logging.Publisher) *Pipeline {
	if pub == nil {
		pub = logging.NopPublisher{}
	}
	return &Pipeline{
		cfg:      cfg,
		rateCap:  cfg.perTickRateLimit(),
		pub:      pub,
		sessions: make(map[uint64]*sessionAdmission),
	}
}

// RegisterSession binds a player id to the pipeline and records startTick
// as the session's initial floor value. Which ticks Admit accepts is
// decided by the pipeline-wide floor set via SetFloor; startTick does not
// gate admission. Identity binding itself
// happens in the session binder; by the time a player id reaches Admit it
// is assumed already authenticated.
func (p *Pipeline) RegisterSession(playerID uint64, startTick uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.sessions[playerID]; exists {
		return
	}
	s := newSessionAdmission(playerID, p.cfg.windowSize())
	s.bound = true
	s.lastEmittedFloor = startTick
	p.sessions[playerID] = s
	p.order = append(p.order, playerID)
	sort.Slice(p.order, func(i, j int) bool { return p.order[i] < p.order[j] })
}

// SetFloor records the tick the kernel is currently at. Admit rejects any
// message whose tick is at or behind the floor: a tick already consumed
// can never be revisited.
func (p *Pipeline) SetFloor(tick uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.floor = tick
}

// Admit validates and merges a single raw input message for playerID,
// applying the validation ladder in order: handshake gate, shape check,
// floor enforcement, per-session monotonicity, acceptance window, then rate
// limiting. It reports whether the message was admitted and, if not, why.
func (p *Pipeline) Admit(ctx context.Context, playerID uint64, raw RawInput) (bool, DropReason) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[playerID]
	if !ok || !s.bound {
		p.drop(ctx, playerID, raw, ReasonBeforeHandshake)
		return false, ReasonBeforeHandshake
	}

	dir := raw.MoveDir
	if math.IsNaN(dir.X) || math.IsNaN(dir.Y) || math.IsInf(dir.X, 0) || math.IsInf(dir.Y, 0) {
		p.drop(ctx, playerID, raw, ReasonShapeInvalid)
		return false, ReasonShapeInvalid
	}
	m := magnitude(dir)
	if m > 1.0 {
		dir = kernel.Vec2{X: dir.X / m, Y: dir.Y / m}
		admission.InputNormalized(ctx, p.pub, raw.Tick, playerRef(playerID),
			admission.NormalizedPayload{Tick: raw.Tick, PlayerID: playerID, Magnitude: m}, nil)
	}

	if raw.Tick <= p.floor {
		p.drop(ctx, playerID, raw, ReasonFloorViolation)
		return false, ReasonFloorViolation
	}

	if s.hasLastValidTick && raw.Tick < s.lastValidCmdTick {
		p.drop(ctx, playerID, raw, ReasonNonMonotonic)
		return false, ReasonNonMonotonic
	}

	if raw.Tick > p.floor+p.cfg.MaxFutureTicks {
		p.drop(ctx, playerID, raw, ReasonOutsideWindow)
		return false, ReasonOutsideWindow
	}

	slot, count := s.slotFor(raw.Tick)
	if *count >= p.rateCap {
		p.drop(ctx, playerID, raw, ReasonRateLimited)
		return false, ReasonRateLimited
	}
	*count++

	if s.hasLastInputSeq && raw.InputSeq <= s.lastInputSeq {
		protocol.SeqNonMonotonic(ctx, p.pub, raw.Tick, playerRef(playerID),
			protocol.SeqPayload{Previous: s.lastInputSeq, Observed: raw.InputSeq}, nil)
	}
	s.hasLastInputSeq = true
	s.lastInputSeq = raw.InputSeq

	wasTied := slot.tied
	slot.merge(raw.InputSeq, dir)
	if slot.tied && !wasTied {
		protocol.TieAtSlot(ctx, p.pub, raw.Tick, playerRef(playerID),
			protocol.TiePayload{Tick: raw.Tick, PlayerID: playerID, MaxSeq: slot.maxSeq}, nil)
	}

	s.hasLastValidTick = true
	s.lastValidCmdTick = raw.Tick

	return true, ""
}

func (p *Pipeline) drop(ctx context.Context, playerID uint64, raw RawInput, reason DropReason) {
	admission.InputDropped(ctx, p.pub, raw.Tick, playerRef(playerID),
		admission.DroppedPayload{Tick: raw.Tick, PlayerID: playerID, InputSeq: raw.InputSeq, Reason: admission.DropReason(reason)}, nil)
}

// Consume finalizes tick and returns exactly one AppliedInput per
// registered session, in ascending player-id order. A session whose slot
// for tick was merged cleanly (no tie) contributes its merged direction and
// the direction becomes the new last-known intent. A tied slot is dropped
// for selection and falls back to the session's last-known intent, logged
// as a protocol violation. A session with no admitted input for tick also
// falls back to its last-known intent.
func (p *Pipeline) Consume(ctx context.Context, tick uint64) []AppliedInput {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]AppliedInput, 0, len(p.order))
	for _, playerID := range p.order {
		s := p.sessions[playerID]
		slot, ok := s.consume(tick)

		switch {
		case ok && !slot.tied:
			s.lastKnownIntent = slot.moveDir
			out = append(out, AppliedInput{Tick: tick, PlayerID: playerID, MoveDir: slot.moveDir, IsFallback: false})
			admission.SlotSelected(ctx, p.pub, tick, playerRef(playerID),
				admission.SelectionPayload{Tick: tick, PlayerID: playerID, IsFallback: false}, nil)
		case ok && slot.tied:
			protocol.TieAtSlot(ctx, p.pub, tick, playerRef(playerID),
				protocol.TiePayload{Tick: tick, PlayerID: playerID, MaxSeq: slot.maxSeq}, nil)
			admission.FallbackApplied(ctx, p.pub, tick, playerRef(playerID),
				admission.SelectionPayload{Tick: tick, PlayerID: playerID, IsFallback: true}, nil)
			out = append(out, AppliedInput{Tick: tick, PlayerID: playerID, MoveDir: s.lastKnownIntent, IsFallback: true})
		default:
			admission.FallbackApplied(ctx, p.pub, tick, playerRef(playerID),
				admission.SelectionPayload{Tick: tick, PlayerID: playerID, IsFallback: true}, nil)
			out = append(out, AppliedInput{Tick: tick, PlayerID: playerID, MoveDir: s.lastKnownIntent, IsFallback: true})
		}
		s.lastEmittedFloor = tick
	}
	return out
}

func magnitude(v kernel.Vec2) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}
