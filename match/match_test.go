package match

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"duelcore/kernel"
	"duelcore/pipeline"
	"duelcore/replay"
	"duelcore/transport/memtransport"
)

func newTestMatch(t *testing.T) (*Match, *memtransport.Peer, *memtransport.Peer) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		Seed:                 42,
		TickRateHz:           60,
		MaxFutureTicks:       10,
		InputLeadTicks:       1,
		InputRateLimitPerSec: 120,
		MatchDurationTicks:   1000,
		ConnectTimeout:       time.Second,
		TickDrainBound:       50 * time.Millisecond,
		ArtifactDir:          dir,
		MatchID:              "match-test-0000000000",
		TestPlayerIDs:        []uint64{0, 1},
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)

	peerA := memtransport.New()
	peerB := memtransport.New()

	ctx := context.Background()
	_, err = m.BindPeer(ctx, peerA)
	require.NoError(t, err)
	require.False(t, m.Started())

	_, err = m.BindPeer(ctx, peerB)
	require.NoError(t, err)
	require.True(t, m.Started())

	return m, peerA, peerB
}

// TestBindPeerSendsWelcomeAndBaselineOnSecondBind: the world is only
// constructed, and both sessions are only notified, once the second
// session binds.
func TestBindPeerSendsWelcomeAndBaselineOnSecondBind(t *testing.T) {
	m, peerA, peerB := newTestMatch(t)

	welcomesA := peerA.Welcomes()
	welcomesB := peerB.Welcomes()
	require.Len(t, welcomesA, 1)
	require.Len(t, welcomesB, 1)
	require.Equal(t, uint64(1), welcomesA[0].TargetTickFloor)
	require.Equal(t, uint64(1), welcomesB[0].TargetTickFloor)
	require.Equal(t, uint64(0), welcomesA[0].PlayerID)
	require.Equal(t, uint64(1), welcomesB[0].PlayerID)
	require.Equal(t, 60, welcomesA[0].TickRateHz)

	baselinesA := peerA.Baselines()
	require.Len(t, baselinesA, 1)
	require.Equal(t, uint64(0), baselinesA[0].Tick)
	require.Equal(t, m.world.Baseline().Digest, baselinesA[0].Digest)
}

// TestStepOneSecondRightMovesExpectedDistance drives one full second of
// ticks with both players holding +X and checks the resulting displacement
// against kernel.MoveSpeed.
func TestStepOneSecondRightMovesExpectedDistance(t *testing.T) {
	m, peerA, _ := newTestMatch(t)
	ctx := context.Background()

	// input_lead_ticks = 1 means tick 0 can never carry an admitted input
	// (floor_violation would reject it), so world tick 0 always applies a
	// fallback zero intent. Driving ticks 1..60 of input across 61 Step
	// calls consumes tick 0 (fallback) plus ticks 1..60 (real input),
	// covering exactly one second of movement at tick_rate_hz = 60.
	for tick := uint64(1); tick <= 60; tick++ {
		ok, reason := m.Admit(ctx, 0, pipeline.RawInput{Tick: tick, InputSeq: tick, MoveDir: kernel.Vec2{X: 1}})
		require.True(t, ok, "player 0 tick %d dropped: %s", tick, reason)
		ok, reason = m.Admit(ctx, 1, pipeline.RawInput{Tick: tick, InputSeq: tick, MoveDir: kernel.Vec2{X: 1}})
		require.True(t, ok, "player 1 tick %d dropped: %s", tick, reason)

		_, err := m.Step(ctx)
		require.NoError(t, err)
	}
	_, err := m.Step(ctx)
	require.NoError(t, err)

	snapshots := peerA.Snapshots()
	require.Len(t, snapshots, 61)
	var last broadcastWireSnapshot
	require.NoError(t, json.Unmarshal(snapshots[60], &last))
	require.Len(t, last.Entities, 2)
	for _, e := range last.Entities {
		require.InDelta(t, kernel.MoveSpeed, e.Position.X, 1e-9)
	}
}

// TestFutureInputDoesNotAffectEarlierTicks: an input accepted far ahead of
// the current tick must not perturb any tick consumed before it.
func TestFutureInputDoesNotAffectEarlierTicks(t *testing.T) {
	m, _, _ := newTestMatch(t)
	ctx := context.Background()

	ok, reason := m.Admit(ctx, 0, pipeline.RawInput{Tick: 8, InputSeq: 1, MoveDir: kernel.Vec2{X: 1}})
	require.True(t, ok, "reason: %s", reason)

	// World ticks 0..7 are all consumed with a fallback zero intent: the
	// admitted input is for world tick 8 specifically, and Consume never
	// lets a future slot affect an earlier tick.
	for tick := uint64(0); tick < 8; tick++ {
		snap, err := m.Step(ctx)
		require.NoError(t, err)
		for _, e := range snap.Entities {
			require.Zero(t, e.Position.X)
		}
	}

	snap, err := m.Step(ctx)
	require.NoError(t, err)
	found := false
	for _, e := range snap.Entities {
		if e.PlayerID == 0 {
			require.Greater(t, e.Position.X, 0.0)
			found = true
		}
	}
	require.True(t, found)
}

// TestRunEndsWithCompleteArtifactOnMatchDuration drives the real tick loop
// to match_duration_ticks and checks the artifact anchors verify.
func TestRunEndsWithCompleteArtifactOnMatchDuration(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Seed:                 7,
		TickRateHz:           200,
		MaxFutureTicks:       5,
		InputLeadTicks:       1,
		InputRateLimitPerSec: 400,
		MatchDurationTicks:   5,
		ConnectTimeout:       time.Second,
		TickDrainBound:       5 * time.Millisecond,
		ArtifactDir:          dir,
		MatchID:              "match-test-complete-0001",
		TestPlayerIDs:        []uint64{0, 1},
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)

	peerA := memtransport.New()
	peerB := memtransport.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = m.BindPeer(ctx, peerA)
	require.NoError(t, err)
	_, err = m.BindPeer(ctx, peerB)
	require.NoError(t, err)

	path, err := m.Run(ctx)
	require.NoError(t, err)
	require.FileExists(t, path)

	artifact := loadTestArtifact(t, path)
	require.Equal(t, replay.EndComplete, artifact.EndReason)
	require.Equal(t, uint64(5), artifact.CheckpointTick)

	verifyErr := replay.Verify(context.Background(), nil, artifact, replay.CurrentFingerprint(), replay.ModeDevelopment)
	require.NoError(t, verifyErr)
}

// TestRunEndsWithDisconnectArtifactOnPeerClose: closing one peer mid-match
// must end the match with end_reason = disconnect rather than hanging or
// erroring.
func TestRunEndsWithDisconnectArtifactOnPeerClose(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Seed:                 7,
		TickRateHz:           200,
		MaxFutureTicks:       5,
		InputLeadTicks:       1,
		InputRateLimitPerSec: 400,
		MatchDurationTicks:   100000,
		ConnectTimeout:       time.Second,
		TickDrainBound:       5 * time.Millisecond,
		ArtifactDir:          dir,
		MatchID:              "match-test-disconnect-0001",
		TestPlayerIDs:        []uint64{0, 1},
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)

	peerA := memtransport.New()
	peerB := memtransport.New()
	ctx := context.Background()

	_, err = m.BindPeer(ctx, peerA)
	require.NoError(t, err)
	_, err = m.BindPeer(ctx, peerB)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		peerB.Close()
	}()

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path, err := m.Run(runCtx)
	require.NoError(t, err)
	require.FileExists(t, path)

	artifact := loadTestArtifact(t, path)
	require.Equal(t, replay.EndDisconnect, artifact.EndReason)
}

// TestAwaitSecondPeerTimesOutWithNoArtifact covers the never-starts abort
// path: no artifact directory entries are created.
func TestAwaitSecondPeerTimesOutWithNoArtifact(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Seed:                 1,
		TickRateHz:           60,
		MaxFutureTicks:       5,
		InputLeadTicks:       1,
		InputRateLimitPerSec: 120,
		MatchDurationTicks:   10,
		ConnectTimeout:       20 * time.Millisecond,
		TickDrainBound:       5 * time.Millisecond,
		ArtifactDir:          dir,
		MatchID:              "match-test-timeout-00001",
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)

	peerA := memtransport.New()
	ctx := context.Background()
	_, err = m.BindPeer(ctx, peerA)
	require.NoError(t, err)

	err = m.AwaitSecondPeer(ctx)
	require.Error(t, err)
	var aborted *ErrAborted
	require.ErrorAs(t, err, &aborted)
	require.Equal(t, "connect_timeout", aborted.Reason)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestDisconnectFinishesTickThenSetsCheckpoint: a peer lost while tick T is
// being processed still gets tick T completed; the artifact then records
// checkpoint_tick = T+1 and a final digest equal to the post-step digest
// of that very tick.
func TestDisconnectFinishesTickThenSetsCheckpoint(t *testing.T) {
	m, _, peerB := newTestMatch(t)
	ctx := context.Background()

	for tick := uint64(0); tick < 50; tick++ {
		_, err := m.Step(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(50), m.CurrentTick())

	require.NoError(t, peerB.Close())

	snap, err := m.Step(ctx)
	var disc *disconnectError
	require.ErrorAs(t, err, &disc)
	require.Equal(t, uint64(51), snap.Tick)
	require.Equal(t, uint64(51), m.CurrentTick())

	path, err := m.Finish(ctx, replay.EndDisconnect)
	require.NoError(t, err)

	artifact := loadTestArtifact(t, path)
	require.Equal(t, replay.EndDisconnect, artifact.EndReason)
	require.Equal(t, uint64(51), artifact.CheckpointTick)
	require.Equal(t, snap.Digest, artifact.FinalDigest)

	require.NoError(t, replay.Verify(ctx, nil, artifact, replay.CurrentFingerprint(), replay.ModeDevelopment))
}

// TestNonContiguousPlayerIDsProduceVerifiableMatch: player ids are pure
// indexing keys, so a match bound as {17, 99} must move, record, and
// verify exactly like one bound as {0, 1}.
func TestNonContiguousPlayerIDsProduceVerifiableMatch(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Seed:                 11,
		TickRateHz:           60,
		MaxFutureTicks:       10,
		InputLeadTicks:       1,
		InputRateLimitPerSec: 120,
		MatchDurationTicks:   1000,
		ConnectTimeout:       time.Second,
		TickDrainBound:       5 * time.Millisecond,
		ArtifactDir:          dir,
		MatchID:              "match-test-ids-17-99-001",
		TestPlayerIDs:        []uint64{17, 99},
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = m.BindPeer(ctx, memtransport.New())
	require.NoError(t, err)
	_, err = m.BindPeer(ctx, memtransport.New())
	require.NoError(t, err)

	for tick := uint64(1); tick <= 10; tick++ {
		ok, reason := m.Admit(ctx, 17, pipeline.RawInput{Tick: tick, InputSeq: tick, MoveDir: kernel.Vec2{X: 1}})
		require.True(t, ok, "player 17 tick %d dropped: %s", tick, reason)
		_, err := m.Step(ctx)
		require.NoError(t, err)
	}
	_, err = m.Step(ctx)
	require.NoError(t, err)

	path, err := m.Finish(ctx, replay.EndComplete)
	require.NoError(t, err)

	artifact := loadTestArtifact(t, path)
	require.True(t, artifact.TestMode)
	require.Equal(t, []uint64{17, 99}, artifact.TestAssignedPlayers)
	require.Equal(t, []uint64{17, 99}, artifact.SpawnOrder)
	require.NoError(t, replay.Verify(ctx, nil, artifact, replay.CurrentFingerprint(), replay.ModeDevelopment))
}

// TestSnapshotsAreByteIdenticalAcrossSessions: both peers must receive the
// exact same payload bytes for every tick, and the floor embedded in each
// successive payload must never decrease.
func TestSnapshotsAreByteIdenticalAcrossSessions(t *testing.T) {
	m, peerA, peerB := newTestMatch(t)
	ctx := context.Background()

	for tick := uint64(0); tick < 20; tick++ {
		_, err := m.Step(ctx)
		require.NoError(t, err)
	}

	snapsA := peerA.Snapshots()
	snapsB := peerB.Snapshots()
	require.Len(t, snapsA, 20)
	require.Equal(t, snapsA, snapsB)

	prevFloor := uint64(0)
	for _, raw := range snapsA {
		var wire broadcastWireSnapshot
		require.NoError(t, json.Unmarshal(raw, &wire))
		require.GreaterOrEqual(t, wire.TargetTickFloor, prevFloor)
		require.Equal(t, wire.Tick+1, wire.TargetTickFloor)
		prevFloor = wire.TargetTickFloor
	}
}

// broadcastWireSnapshot mirrors broadcast.WireSnapshot's JSON shape without
// importing the broadcast package, keeping this test focused on what a
// client actually receives over the wire.
type broadcastWireSnapshot struct {
	Tick            uint64                `json:"tick"`
	Entities        []kernel.EntityRecord `json:"entities"`
	Digest          uint64                `json:"digest"`
	TargetTickFloor uint64                `json:"targetTickFloor"`
}

func loadTestArtifact(t *testing.T, path string) *replay.Artifact {
	t.Helper()
	file, err := os.Open(filepath.Clean(path))
	require.NoError(t, err)
	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gz.Close()

	var artifact replay.Artifact
	require.NoError(t, json.NewDecoder(gz).Decode(&artifact))
	return &artifact
}
