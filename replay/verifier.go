package replay

import (
	"context"
	"fmt"

	replaylog "duelcore/logging/replay"

	"duelcore/kernel"
	"duelcore/logging"
)

// VerifyMode selects how strictly the verifier treats a build fingerprint
// mismatch: strict mode fails immediately, development mode only warns and
// continues through the remaining steps.
type VerifyMode int

const (
	ModeStrict VerifyMode = iota
	ModeDevelopment
)

// VerifyError identifies which of the seven ordered verification steps
// failed, so callers (and cmd/replayverify) can report a precise reason.
type VerifyError struct {
	Step   string
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("replay verification failed at step %q: %s", e.Step, e.Reason)
}

// Verify checks an artifact in seven ordered steps — binary identity,
// applied-input integrity, kernel construction, spawn reconstruction, the
// initialization anchor, the replay itself, and the final anchor — against
// a freshly reconstructed World, aborting at the first failure. current is
// the fingerprint of the binary doing the verifying.
func Verify(ctx context.Context, pub logging.Publisher, artifact *Artifact, current BuildFingerprint, mode VerifyMode) error {
	if pub == nil {
		pub = logging.NopPublisher{}
	}

	fail := func(step, reason string) error {
		replaylog.VerificationFailed(ctx, pub, replaylog.VerificationFailedPayload{
			Step: step, Reason: reason,
		}, nil)
		return &VerifyError{Step: step, Reason: reason}
	}

	// 1. Binary identity.
	if artifact.BuildFingerprint != current {
		if mode == ModeStrict {
			return fail("binary_identity", "build fingerprint does not match the verifying binary")
		}
		replaylog.FingerprintMismatch(ctx, pub, replaylog.FingerprintMismatchPayload{
			Recorded: artifact.BuildFingerprint.BinaryHash,
			Current:  current.BinaryHash,
		}, nil)
	}

	// 2. Applied-input integrity: exactly one entry per (player, tick) in
	// [initial_baseline.tick, checkpoint_tick).
	if err := verifyAppliedInputIntegrity(artifact); err != nil {
		return fail("applied_input_integrity", err.Error())
	}

	// 3. Kernel construction.
	world, err := kernel.NewWorld(artifact.Seed, artifact.TickRateHz)
	if err != nil {
		return fail("kernel_construction", err.Error())
	}

	// 4. Spawn reconstruction.
	entityByPlayer := make(map[uint64]uint64, len(artifact.PlayerEntity))
	for _, pe := range artifact.PlayerEntity {
		entityByPlayer[pe.PlayerID] = pe.EntityID
	}
	for _, playerID := range artifact.SpawnOrder {
		got := world.SpawnCharacter(playerID)
		want, ok := entityByPlayer[playerID]
		if !ok {
			return fail("spawn_reconstruction", fmt.Sprintf("player %d has no recorded entity mapping", playerID))
		}
		if got != want {
			return fail("spawn_reconstruction", fmt.Sprintf("player %d spawned as entity %d, artifact recorded %d", playerID, got, want))
		}
	}

	// 5. Initialization anchor.
	baseline := world.Baseline()
	if baseline.Digest != artifact.InitialBaseline.Digest {
		return fail("initialization_anchor", "reconstructed baseline digest does not match artifact.initial_baseline.digest")
	}

	// 6. Replay, canonicalizing before use regardless of stored order.
	byTick := make(map[uint64][]AppliedInputRecord)
	for _, rec := range artifact.AppliedInputs {
		byTick[rec.Tick] = append(byTick[rec.Tick], rec)
	}

	for t := artifact.InitialBaseline.Tick; t < artifact.CheckpointTick; t++ {
		records := append([]AppliedInputRecord(nil), byTick[t]...)
		sortAppliedInputRecords(records)

		steps := make([]kernel.StepInput, 0, len(records))
		for _, rec := range records {
			steps = append(steps, kernel.StepInput{PlayerID: rec.PlayerID, MoveDir: rec.MoveDir})
		}
		world.Advance(t, steps)
	}

	// 7. Final anchor, read off the world itself so a zero-tick replay
	// still compares the reconstructed state.
	if world.CurrentTick() != artifact.CheckpointTick {
		return fail("final_anchor", fmt.Sprintf("world current_tick %d does not equal checkpoint_tick %d", world.CurrentTick(), artifact.CheckpointTick))
	}
	if world.StateDigest() != artifact.FinalDigest {
		return fail("final_anchor", "final world digest does not match artifact.final_digest")
	}

	replaylog.VerificationPassed(ctx, pub, replaylog.VerificationPassedPayload{
		CheckpointTick: artifact.CheckpointTick,
	}, nil)
	return nil
}

func verifyAppliedInputIntegrity(artifact *Artifact) error {
	start := artifact.InitialBaseline.Tick
	end := artifact.CheckpointTick

	known := make(map[uint64]bool, len(artifact.PlayerEntity))
	for _, pe := range artifact.PlayerEntity {
		known[pe.PlayerID] = true
	}

	seen := make(map[[2]uint64]bool, len(artifact.AppliedInputs))
	for _, rec := range artifact.AppliedInputs {
		if !known[rec.PlayerID] {
			return fmt.Errorf("applied input references unknown player id %d", rec.PlayerID)
		}
		if rec.Tick < start || rec.Tick >= end {
			return fmt.Errorf("applied input at tick %d falls outside [%d, %d)", rec.Tick, start, end)
		}
		key := [2]uint64{rec.Tick, rec.PlayerID}
		if seen[key] {
			return fmt.Errorf("duplicate applied input for player %d at tick %d", rec.PlayerID, rec.Tick)
		}
		seen[key] = true
	}

	for playerID := range known {
		for t := start; t < end; t++ {
			if !seen[[2]uint64{t, playerID}] {
				return fmt.Errorf("missing applied input for player %d at tick %d", playerID, t)
			}
		}
	}
	return nil
}
