package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Pinned digests for the canonical movement scenario: two characters at the
// origin, player 0 holding (1, 0) for sixty ticks at 60Hz. Any drift in the
// digest byte layout, the canonicalization rules, or the movement law's
// float behavior shows up here as a constant mismatch before it can corrupt
// a replay artifact in the field.
const (
	harnessBaselineDigest uint64 = 0xd5dd6b8064ac4d64
	harnessTick1Digest    uint64 = 0x0b71c1d87f3bdc4f
	harnessTick60Digest   uint64 = 0xb020b5d77b019fc5
)

func TestDigestHarnessMatchesPinnedBaseline(t *testing.T) {
	w, err := NewWorld(0, 60)
	require.NoError(t, err)
	w.SpawnCharacter(0)
	w.SpawnCharacter(1)

	require.Equal(t, harnessBaselineDigest, w.Baseline().Digest)

	var snap Snapshot
	for tick := uint64(0); tick < 60; tick++ {
		snap = w.Advance(tick, []StepInput{
			{PlayerID: 0, MoveDir: Vec2{X: 1, Y: 0}},
			{PlayerID: 1, MoveDir: Vec2{X: 0, Y: 0}},
		})
		if tick == 0 {
			require.Equal(t, harnessTick1Digest, snap.Digest)
		}
	}
	require.Equal(t, harnessTick60Digest, snap.Digest)
}

// The seed feeds only the PRNG, which nothing in the movement law consumes,
// so two worlds that differ only in seed must digest identically until a
// future system draws from the RNG.
func TestDigestIgnoresUnusedSeed(t *testing.T) {
	build := func(seed int64) uint64 {
		w, err := NewWorld(seed, 60)
		require.NoError(t, err)
		w.SpawnCharacter(0)
		w.SpawnCharacter(1)
		return w.Baseline().Digest
	}
	require.Equal(t, build(1), build(999))
}
