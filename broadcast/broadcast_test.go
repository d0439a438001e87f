package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"duelcore/kernel"
)

func TestWelcomeFloorEqualsInputLeadTicks(t *testing.T) {
	f := NewFanout(1)
	require.Equal(t, uint64(1), f.WelcomeFloor())
}

func TestPrepareProducesByteIdenticalPayloadRegardlessOfSessionOrder(t *testing.T) {
	snap := kernel.Snapshot{
		Tick:   5,
		Digest: 12345,
		Entities: []kernel.EntityRecord{
			{ID: 0, PlayerID: 0, Position: kernel.Vec2{X: 1}},
			{ID: 1, PlayerID: 1, Position: kernel.Vec2{X: 2}},
		},
	}

	f1 := NewFanout(1)
	payloadA, err := f1.Prepare(snap, []uint64{0, 1})
	require.NoError(t, err)

	f2 := NewFanout(1)
	payloadB, err := f2.Prepare(snap, []uint64{1, 0})
	require.NoError(t, err)

	require.Equal(t, payloadA, payloadB)
}

func TestFloorIsPostStepTickPlusInputLead(t *testing.T) {
	require.Equal(t, uint64(6), Floor(5, 1))
	require.Equal(t, uint64(5), Floor(5, 0))
}

func TestFanoutTracksMonotonicFloorPerSession(t *testing.T) {
	f := NewFanout(1)
	snap := kernel.Snapshot{Tick: 10}

	_, err := f.Prepare(snap, []uint64{0, 1})
	require.NoError(t, err)
	require.Equal(t, uint64(11), f.LastFloor(0))
	require.Equal(t, uint64(11), f.LastFloor(1))

	snap.Tick = 11
	_, err = f.Prepare(snap, []uint64{0, 1})
	require.NoError(t, err)
	require.Equal(t, uint64(12), f.LastFloor(0))
}

func TestFanoutRejectsFloorRegression(t *testing.T) {
	f := NewFanout(1)
	_, err := f.Prepare(kernel.Snapshot{Tick: 10}, []uint64{0})
	require.NoError(t, err)

	_, err = f.Prepare(kernel.Snapshot{Tick: 5}, []uint64{0})
	require.Error(t, err)
}
