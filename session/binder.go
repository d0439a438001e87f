// Package session binds exactly two transport connections to player ids
// for the duration of a match and gates traffic that arrives before both
// sides have completed the handshake. The binder tracks phase and
// membership only; what a disconnect means for the match (abort vs.
// artifact) is the caller's call.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"duelcore/logging"
	"duelcore/logging/lifecycle"
)

// ErrMatchFull is returned by Bind once two sessions have already been bound.
var ErrMatchFull = errors.New("session: match already has two bound sessions")

// ErrUnknownPlayer is returned when an operation names a player id that was
// never bound.
var ErrUnknownPlayer = errors.New("session: unknown player id")

// Phase tracks where a match is in its lifecycle.
type Phase int

const (
	PhaseAwaitingPlayers Phase = iota
	PhaseActive
	PhaseEnded
)

// Handle identifies one bound session.
type Handle struct {
	PlayerID uint64
	EntityID uint64
}

// Binder accepts at most two sessions, assigns player ids, and gates any
// traffic that arrives before both sessions are bound. Player ids default
// to 0 and 1 in arrival order; tests may override via BindAs for
// non-contiguous id scenarios.
type Binder struct {
	mu    sync.Mutex
	phase Phase
	pub   logging.Publisher

	order             []uint64
	bound             map[uint64]Handle
	handshakeComplete map[uint64]bool
}

// NewBinder constructs an empty Binder. pub may be nil.
func NewBinder(pub logging.Publisher) *Binder {
	if pub == nil {
		pub = logging.NopPublisher{}
	}
	return &Binder{
		pub:               pub,
		bound:             make(map[uint64]Handle),
		handshakeComplete: make(map[uint64]bool),
	}
}

// Bind admits the next session under the default 0/1 assignment.
func (b *Binder) Bind(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindLocked(ctx, uint64(len(b.order)))
}

// BindAs admits the next session under an explicit player id, for tests
// exercising non-contiguous player id assignment (e.g. {17, 99}).
func (b *Binder) BindAs(ctx context.Context, playerID uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindLocked(ctx, playerID)
}

func (b *Binder) bindLocked(ctx context.Context, playerID uint64) (uint64, error) {
	if len(b.order) >= 2 {
		return 0, ErrMatchFull
	}
	if _, exists := b.bound[playerID]; exists {
		return 0, fmt.Errorf("session: player id %d already bound", playerID)
	}
	b.bound[playerID] = Handle{PlayerID: playerID}
	b.order = append(b.order, playerID)

	if len(b.order) == 2 {
		b.phase = PhaseActive
	}
	return playerID, nil
}

// CompleteHandshake marks playerID as having finished its pre-match
// handshake. Traffic from a session that hasn't completed its handshake
// must be gated by the caller (the pipeline's ReasonBeforeHandshake drop).
func (b *Binder) CompleteHandshake(ctx context.Context, playerID uint64, entityID uint64, spawnX, spawnY float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.bound[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	h.EntityID = entityID
	b.bound[playerID] = h
	b.handshakeComplete[playerID] = true

	lifecycle.PlayerJoined(ctx, b.pub, 0, playerRef(playerID), lifecycle.PlayerJoinedPayload{
		SpawnX: spawnX, SpawnY: spawnY,
	}, nil)
	return nil
}

// Ready reports whether both sessions have bound and completed their
// handshake. Admission may begin only once Ready is true.
func (b *Binder) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase == PhaseActive && len(b.handshakeComplete) == 2
}

// HandshakeComplete reports whether playerID specifically has finished its
// handshake, independent of whether the other session has.
func (b *Binder) HandshakeComplete(playerID uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handshakeComplete[playerID]
}

// PlayerIDs returns the bound player ids in ascending order.
func (b *Binder) PlayerIDs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, len(b.order))
	copy(out, b.order)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BoundOrder returns the bound player ids in arrival order. Characters are
// spawned in this order and it is recorded verbatim in the replay artifact,
// so a reconstruction can replay the exact same spawn sequence.
func (b *Binder) BoundOrder() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, len(b.order))
	copy(out, b.order)
	return out
}

// Disconnect marks playerID as gone, transitioning the match to Ended. It
// is the caller's responsibility to distinguish a pre-match disconnect
// (lifecycle abort, no artifact) from an in-match disconnect (artifact with
// end_reason = disconnect) — the binder only tracks phase and membership.
func (b *Binder) Disconnect(ctx context.Context, playerID uint64, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.bound[playerID]; !ok {
		return ErrUnknownPlayer
	}
	b.phase = PhaseEnded

	lifecycle.PlayerDisconnected(ctx, b.pub, 0, playerRef(playerID), lifecycle.PlayerDisconnectedPayload{
		Reason: reason,
	}, nil)
	return nil
}

// CurrentPhase reports the match's current lifecycle phase.
func (b *Binder) CurrentPhase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func playerRef(playerID uint64) logging.EntityRef {
	return logging.EntityRef{ID: fmt.Sprintf("%d", playerID), Kind: "player"}
}
