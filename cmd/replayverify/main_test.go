package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"duelcore/kernel"
	"duelcore/pipeline"
	"duelcore/replay"
)

func writeArtifact(t *testing.T) string {
	t.Helper()
	rec, err := replay.NewRecorder(t.TempDir(), "replayverify-cli-00001", nil, 3, 60, replay.CurrentFingerprint())
	require.NoError(t, err)

	w, err := kernel.NewWorld(3, 60)
	require.NoError(t, err)
	e0 := w.SpawnCharacter(0)
	e1 := w.SpawnCharacter(1)
	rec.RecordSpawn(0, e0)
	rec.RecordSpawn(1, e1)
	rec.RecordBaseline(w.Baseline())

	var snap kernel.Snapshot
	for tick := uint64(0); tick < 5; tick++ {
		inputs := []kernel.StepInput{
			{PlayerID: 0, MoveDir: kernel.Vec2{X: 1}},
			{PlayerID: 1, MoveDir: kernel.Vec2{}},
		}
		snap = w.Advance(tick, inputs)
		rec.RecordAppliedInputs([]pipeline.AppliedInput{
			{Tick: tick, PlayerID: 0, MoveDir: inputs[0].MoveDir},
			{Tick: tick, PlayerID: 1, MoveDir: inputs[1].MoveDir},
		})
	}

	path, err := rec.Finish(context.Background(), snap.Digest, w.CurrentTick(), replay.EndComplete)
	require.NoError(t, err)
	return path
}

func TestRunPassesOnValidArtifact(t *testing.T) {
	path := writeArtifact(t)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--artifact", path}, &stdout, &stderr))
	require.True(t, strings.Contains(stdout.String(), "PASS"), "stdout: %s", stdout.String())
}

func TestRunRequiresArtifactFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Error(t, run(nil, &stdout, &stderr))
}

func TestRunFailsOnMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--artifact", "/nonexistent/path.replay.json.gz"}, &stdout, &stderr)
	require.Error(t, err)
}
