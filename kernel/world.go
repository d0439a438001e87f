// Package kernel is the fixed-timestep, side-effect-free simulation core.
// It holds a World, advances it one tick at a time, and produces a
// canonical 64-bit digest of the post-step state. It touches no clock, no
// filesystem, no socket, and no ambient randomness — its only input is the
// (seed, tick rate) given at construction and the StepInputs handed to
// Advance. This isolation is what makes replay verification possible:
// see Verify in the replay package.
package kernel

import (
	"errors"
	"fmt"
	"math/rand"
)

// MoveSpeed is the v0 movement law constant, in world units per second.
const MoveSpeed = 5.0

// DigestAlgorithm identifies the canonical digest scheme implemented by
// StateDigest. Any change to included fields, ordering, encoding, or hash
// constants must mint a new identifier so replay artifacts stay
// self-describing.
const DigestAlgorithm = "fnv1a64-tick-le-entities-v1"

// PRNGAlgorithm identifies the PRNG implementation seeded at construction.
const PRNGAlgorithm = "go-math-rand-v1"

// ErrZeroTickRate is returned by NewWorld when tickRateHz is zero.
var ErrZeroTickRate = errors.New("kernel: tick_rate_hz must be non-zero")

// Vec2 is a 2-component float64 vector.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Character is the only entity kind in v0: a stable id, its owning player,
// and its kinematic state.
type Character struct {
	ID       uint64
	PlayerID uint64
	Position Vec2
	Velocity Vec2
}

// StepInput is the kernel's view of an applied input: no protocol metadata,
// just which player moved which direction this tick.
type StepInput struct {
	PlayerID uint64
	MoveDir  Vec2
}

// World holds the match's authoritative state: the current tick, the PRNG,
// and an append-only, ascending-entity-id-ordered table of characters.
type World struct {
	tick         uint64
	tickRateHz   int
	dt           float64
	rng          *rand.Rand
	characters   []*Character
	byPlayer     map[uint64]*Character
	nextEntityID uint64
}

// NewWorld constructs a World at tick 0 with a seeded PRNG and a fixed
// dt = 1 / tick_rate_hz precomputed once. It fails only when tickRateHz is
// zero; every other input is accepted, including negative seeds.
func NewWorld(seed int64, tickRateHz int) (*World, error) {
	if tickRateHz == 0 {
		return nil, ErrZeroTickRate
	}
	return &World{
		tickRateHz: tickRateHz,
		dt:         1.0 / float64(tickRateHz),
		rng:        rand.New(rand.NewSource(seed)),
		byPlayer:   make(map[uint64]*Character),
	}, nil
}

// TickRateHz reports the fixed tick rate this World was constructed with.
func (w *World) TickRateHz() int {
	return w.tickRateHz
}

// CurrentTick reports the world's current tick.
func (w *World) CurrentTick() uint64 {
	return w.tick
}

// RNG exposes the world's seeded PRNG to callers that need deterministic
// randomness derived from match state (none in v0; reserved for future
// gameplay content built on this kernel).
func (w *World) RNG() *rand.Rand {
	return w.rng
}

// SpawnCharacter appends a new character owned by playerID at the
// deterministic spawn position (the origin, with zero velocity) and
// returns its freshly minted entity id. Entity ids are assigned by a
// monotonic counter, so the character table stays in ascending-id order
// with no sort needed. Spawning the same player twice is a precondition
// violation and panics: the world holds exactly one character per player.
func (w *World) SpawnCharacter(playerID uint64) uint64 {
	if _, exists := w.byPlayer[playerID]; exists {
		panic(fmt.Sprintf("kernel: player %d already has a character", playerID))
	}
	id := w.nextEntityID
	w.nextEntityID++
	character := &Character{ID: id, PlayerID: playerID}
	w.characters = append(w.characters, character)
	w.byPlayer[playerID] = character
	return id
}

// Advance steps the world from tick to tick+1 using the supplied
// StepInputs, which must be sorted by player id ascending. Calling it with
// a tick other than the world's current tick is a precondition violation
// and panics; this can only happen from a programming error in the caller
// (the pipeline and the verifier both guarantee tick == current_tick).
func (w *World) Advance(tick uint64, inputs []StepInput) Snapshot {
	if tick != w.tick {
		panic(fmt.Sprintf("kernel: Advance called with tick %d but world is at %d", tick, w.tick))
	}
	moveDirs := make(map[uint64]Vec2, len(inputs))
	for i, in := range inputs {
		if i > 0 && inputs[i-1].PlayerID >= in.PlayerID {
			panic("kernel: Advance requires step_inputs sorted by player id ascending")
		}
		moveDirs[in.PlayerID] = in.MoveDir
	}

	for _, c := range w.characters {
		dir := moveDirs[c.PlayerID]
		c.Velocity = Vec2{X: dir.X * MoveSpeed, Y: dir.Y * MoveSpeed}
		// The displacement is rounded to f64 before the add: a fused
		// multiply-add here would produce different bits on hardware that
		// contracts a*b+c, and the digest pins these exact bits. The explicit
		// float64 conversion is what forces the rounding: Go may otherwise
		// fuse the multiply into the add even across statements.
		dx := float64(c.Velocity.X * w.dt)
		dy := float64(c.Velocity.Y * w.dt)
		c.Position = Vec2{X: c.Position.X + dx, Y: c.Position.Y + dy}
	}

	w.tick = tick + 1
	return Snapshot{
		Tick:     w.tick,
		Entities: w.entityRecords(),
		Digest:   w.StateDigest(),
	}
}

func (w *World) entityRecords() []EntityRecord {
	records := make([]EntityRecord, len(w.characters))
	for i, c := range w.characters {
		records[i] = EntityRecord{
			ID:       c.ID,
			PlayerID: c.PlayerID,
			Position: c.Position,
			Velocity: c.Velocity,
		}
	}
	return records
}
