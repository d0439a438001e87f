package match

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"duelcore/broadcast"
	"duelcore/kernel"
	"duelcore/logging"
	"duelcore/logging/lifecycle"
	"duelcore/pipeline"
	"duelcore/replay"
	"duelcore/session"
	"duelcore/transport"
)

// AbortedLogToken is the stable token printed/logged on a pre-match
// lifecycle abort (connect timeout or pre-match disconnect), so operators
// can grep for it regardless of which path triggered the abort.
const AbortedLogToken = "MATCH_ABORTED_NO_ARTIFACT"

// ErrAborted is returned by AwaitSecondPeer when the match never starts.
type ErrAborted struct {
	Reason string
}

func (e *ErrAborted) Error() string {
	return fmt.Sprintf("match: aborted before start: %s", e.Reason)
}

// Match owns every moving part of one two-player match for its entire
// lifecycle: binder, world, pipeline, fanout, and recorder. It is not
// safe for concurrent use from more than the single tick-loop goroutine
// plus the session-accept goroutines feeding BindPeer, both of which take
// the same mutex.
type Match struct {
	cfg Config
	pub logging.Publisher

	binder *session.Binder

	mu        sync.Mutex
	started   bool
	ended     bool
	startedCh chan struct{}

	world    *kernel.World
	pipe     *pipeline.Pipeline
	fan      *broadcast.Fanout
	rec      *replay.Recorder
	peers    map[uint64]transport.Peer
	entityOf map[uint64]uint64
}

// New validates cfg and constructs an unstarted Match: no World exists yet
// and no sessions are bound. The World is allocated only once two sessions
// are bound.
func New(cfg Config, pub logging.Publisher) (*Match, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if pub == nil {
		pub = logging.NopPublisher{}
	}
	return &Match{
		cfg:       cfg,
		pub:       pub,
		binder:    session.NewBinder(pub),
		peers:     make(map[uint64]transport.Peer),
		entityOf:  make(map[uint64]uint64),
		startedCh: make(chan struct{}),
	}, nil
}

// BindPeer admits peer as the next session. Before two sessions exist, no
// simulation steps occur and any input passed to Admit is discarded with
// ReasonBeforeHandshake (no pipeline exists yet). Once this is
// the second bind, the world is constructed, characters are spawned in
// bound order, and both sessions receive ServerWelcome + JoinBaseline.
func (m *Match) BindPeer(ctx context.Context, peer transport.Peer) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var playerID uint64
	var err error
	if len(m.cfg.TestPlayerIDs) == 2 {
		idx := len(m.peers)
		if idx > 1 {
			return 0, session.ErrMatchFull
		}
		playerID, err = m.binder.BindAs(ctx, m.cfg.TestPlayerIDs[idx])
	} else {
		playerID, err = m.binder.Bind(ctx)
	}
	if err != nil {
		return 0, err
	}
	m.peers[playerID] = peer

	if len(m.peers) == 2 {
		m.startLocked(ctx)
	}
	return playerID, nil
}

// startLocked constructs the World, spawns characters in bound order,
// wires the pipeline and fanout, and sends the handshake reply to both
// sessions. Caller must hold m.mu.
func (m *Match) startLocked(ctx context.Context) {
	world, err := kernel.NewWorld(m.cfg.Seed, m.cfg.TickRateHz)
	if err != nil {
		// Unreachable: Config.validate already rejected TickRateHz == 0.
		panic(fmt.Sprintf("match: kernel construction failed after validated config: %v", err))
	}
	m.world = world

	rec, err := replay.NewRecorder(m.cfg.ArtifactDir, m.cfg.MatchID, m.pub, m.cfg.Seed, m.cfg.TickRateHz, replay.CurrentFingerprint())
	if err != nil {
		panic(fmt.Sprintf("match: recorder construction failed: %v", err))
	}
	m.rec = rec
	if len(m.cfg.TestPlayerIDs) == 2 {
		rec.SetTestMode(m.cfg.TestPlayerIDs)
	}

	m.pipe = pipeline.NewPipeline(pipeline.Config{
		TickRateHz:           m.cfg.TickRateHz,
		MaxFutureTicks:       m.cfg.MaxFutureTicks,
		InputRateLimitPerSec: m.cfg.InputRateLimitPerSec,
	}, m.pub)
	m.fan = broadcast.NewFanout(m.cfg.InputLeadTicks)

	order := m.binder.BoundOrder()
	for _, playerID := range order {
		entityID := m.world.SpawnCharacter(playerID)
		m.entityOf[playerID] = entityID
		m.rec.RecordSpawn(playerID, entityID)
	}
	m.rec.RecordBaseline(m.world.Baseline())

	m.pipe.SetFloor(m.world.CurrentTick())

	welcomeFloor := m.fan.WelcomeFloor()
	for _, playerID := range order {
		m.pipe.RegisterSession(playerID, welcomeFloor)

		peer := m.peers[playerID]
		_ = peer.SendWelcome(ctx, transport.ServerWelcome{
			PlayerID:        playerID,
			EntityID:        m.entityOf[playerID],
			TickRateHz:      m.cfg.TickRateHz,
			TargetTickFloor: welcomeFloor,
		})
		baseline := m.world.Baseline()
		_ = peer.SendBaseline(ctx, transport.JoinBaseline{
			Tick:     baseline.Tick,
			Entities: baseline.Entities,
			Digest:   baseline.Digest,
		})

		// Spawn position is the deterministic origin for every character
		// in v0 (kernel.World.SpawnCharacter), so there is no per-player
		// value to look up here.
		if err := m.binder.CompleteHandshake(ctx, playerID, m.entityOf[playerID], 0, 0); err != nil {
			panic(fmt.Sprintf("match: handshake completion for newly bound player %d: %v", playerID, err))
		}
	}
	m.started = true
	close(m.startedCh)
}

// Started reports whether two sessions have bound and the match has begun.
func (m *Match) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Abort records a pre-match lifecycle abort (connect timeout or pre-match
// disconnect): no artifact is ever written for a match that never
// started. Callers are expected to exit the process with a non-zero
// status after calling this.
func (m *Match) Abort(ctx context.Context, reason string) {
	lifecycle.MatchAborted(ctx, m.pub, lifecycle.MatchAbortedPayload{
		Token: AbortedLogToken, Reason: reason,
	}, nil)
}

// Admit forwards a raw client input to the pipeline under playerID's
// binding. It is a no-op error path (returns the drop reason) rather than
// a disconnect: per-message admission failures never disconnect a session.
func (m *Match) Admit(ctx context.Context, playerID uint64, raw pipeline.RawInput) (bool, pipeline.DropReason) {
	m.mu.Lock()
	pipe := m.pipe
	m.mu.Unlock()
	if pipe == nil {
		m.addMetric("match_inputs_dropped_total", 1)
		return false, pipeline.ReasonBeforeHandshake
	}
	ok, reason := pipe.Admit(ctx, playerID, raw)
	if ok {
		m.addMetric("match_inputs_admitted_total", 1)
	} else {
		m.addMetric("match_inputs_dropped_total", 1)
	}
	return ok, reason
}

// addMetric is a nil-safe counter increment: cfg.Metrics may be left unset
// in tests and in any binary that doesn't care to scrape it.
func (m *Match) addMetric(key string, delta uint64) {
	if m.cfg.Metrics == nil {
		return
	}
	m.cfg.Metrics.Add(key, delta)
}

// storeMetric is a nil-safe gauge set, the Store counterpart to addMetric.
func (m *Match) storeMetric(key string, value uint64) {
	if m.cfg.Metrics == nil {
		return
	}
	m.cfg.Metrics.Store(key, value)
}

// Step advances the world exactly one tick: consumes the pipeline's
// applied inputs for the current tick, steps the kernel, serializes and
// fans out the resulting snapshot, and records the applied inputs.
// Admission always precedes consumption, which precedes the kernel step,
// which precedes snapshot emission.
func (m *Match) Step(ctx context.Context) (kernel.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return kernel.Snapshot{}, fmt.Errorf("match: Step called before two sessions bound")
	}
	if m.ended {
		return kernel.Snapshot{}, fmt.Errorf("match: Step called after the match ended")
	}

	tick := m.world.CurrentTick()
	applied := m.pipe.Consume(ctx, tick)
	m.rec.RecordAppliedInputs(applied)

	steps := make([]kernel.StepInput, len(applied))
	for i, a := range applied {
		steps[i] = kernel.StepInput{PlayerID: a.PlayerID, MoveDir: a.MoveDir}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].PlayerID < steps[j].PlayerID })

	snap := m.world.Advance(tick, steps)

	ids := make([]uint64, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	payload, err := m.fan.Prepare(snap, ids)
	if err != nil {
		return kernel.Snapshot{}, fmt.Errorf("match: prepare snapshot: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := m.peers[id].SendSnapshotBytes(ctx, payload); err != nil {
			// A send failure here is a transport-level disconnect signal;
			// the caller (Run) treats it as an in-match disconnect honored
			// at this tick boundary, never mid-step. The kernel has already
			// advanced by the time this is observed.
			return snap, &disconnectError{PlayerID: id, Cause: err}
		}
	}
	m.pipe.SetFloor(snap.Tick)
	m.addMetric("match_ticks_total", 1)
	m.storeMetric("match_current_tick", snap.Tick)

	return snap, nil
}

// Finish writes the replay artifact and returns its path. reason must be
// EndComplete (checkpoint == match_duration_ticks) or EndDisconnect
// (checkpoint == T+1 of the tick that was completing when the disconnect
// was observed). The match only ever ends at a tick boundary.
func (m *Match) Finish(ctx context.Context, reason replay.EndReason) (string, error) {
	m.mu.Lock()
	checkpoint := m.world.CurrentTick()
	finalDigest := m.world.StateDigest()
	m.ended = true
	m.mu.Unlock()

	path, err := m.rec.Finish(ctx, finalDigest, checkpoint, reason)
	if err != nil {
		return "", err
	}
	lifecycle.MatchCompleted(ctx, m.pub, lifecycle.MatchCompletedPayload{
		CheckpointTick: checkpoint, EndReason: string(reason),
	}, nil)
	return path, nil
}

// CurrentTick reports the world's current tick, or 0 before the match has
// started.
func (m *Match) CurrentTick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.world == nil {
		return 0
	}
	return m.world.CurrentTick()
}
