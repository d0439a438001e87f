// Package replay records and verifies one self-sufficient artifact per
// match: everything needed to reconstruct and re-simulate the match from
// scratch and confirm it reproduces the same digests, with no dependency
// on anything outside the artifact itself. The recorder buffers in memory
// and flushes once at match end; the verifier reconstructs a fresh world
// and re-derives both digest anchors from the recorded stream.
package replay

import (
	"regexp"

	"github.com/iancoleman/orderedmap"

	"duelcore/kernel"
	"duelcore/pipeline"
)

// EndReason identifies how a match reached its checkpoint tick.
type EndReason string

const (
	EndComplete   EndReason = "complete"
	EndDisconnect EndReason = "disconnect"
)

// MatchIDPattern is the filesystem- and URL-safe alphabet a match id must
// be drawn from, 16 to 64 characters.
var MatchIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,64}$`)

// BuildFingerprint identifies the binary that produced an artifact, so the
// verifier can refuse to trust a replay produced by a different build in
// strict mode.
type BuildFingerprint struct {
	BinaryHash     string `json:"binaryHash"`
	TargetTriple   string `json:"targetTriple"`
	BuildProfile   string `json:"buildProfile"`
	SourceRevision string `json:"sourceRevision"`
}

// PlayerEntity is one entry of the sorted-by-player-id player→entity map.
type PlayerEntity struct {
	PlayerID uint64 `json:"playerId"`
	EntityID uint64 `json:"entityId"`
}

// AppliedInputRecord is one entry of the artifact's applied-input stream.
type AppliedInputRecord struct {
	Tick       uint64      `json:"tick"`
	PlayerID   uint64      `json:"playerId"`
	MoveDir    kernel.Vec2 `json:"moveDir"`
	IsFallback bool        `json:"isFallback"`
}

// Artifact is the full, self-sufficient replay record for one match.
type Artifact struct {
	FormatVersion   int    `json:"formatVersion"`
	DigestAlgorithm string `json:"digestAlgorithm"`
	PRNGAlgorithm   string `json:"prngAlgorithm"`
	TickRateHz      int    `json:"tickRateHz"`
	Seed            int64  `json:"seed"`

	SpawnOrder   []uint64       `json:"spawnOrder"`
	PlayerEntity []PlayerEntity `json:"playerEntity"`

	// TuningParams is a sorted-key list (move_speed = 5.0 at minimum in
	// v0), carried as an orderedmap so its JSON rendering preserves
	// ascending key order without a bespoke marshaler.
	TuningParams *orderedmap.OrderedMap `json:"tuningParams"`

	InitialBaseline kernel.Baseline `json:"initialBaseline"`

	AppliedInputs []AppliedInputRecord `json:"appliedInputs"`

	BuildFingerprint BuildFingerprint `json:"buildFingerprint"`

	FinalDigest    uint64    `json:"finalDigest"`
	CheckpointTick uint64    `json:"checkpointTick"`
	EndReason      EndReason `json:"endReason"`

	TestMode            bool     `json:"testMode,omitempty"`
	TestAssignedPlayers []uint64 `json:"testAssignedPlayers,omitempty"`
}

// DefaultTuningParams returns the v0 tuning parameter set: move_speed is
// the only tunable the movement law reads, keyed and sorted for the
// artifact's canonical rendering.
func DefaultTuningParams() *orderedmap.OrderedMap {
	m := orderedmap.New()
	m.Set("move_speed", kernel.MoveSpeed)
	return m
}

// appliedInputRecords converts pipeline.AppliedInput values into the
// artifact's canonical representation, sorted tick ascending then player
// id ascending, regardless of the order they arrived in.
func appliedInputRecords(inputs []pipeline.AppliedInput) []AppliedInputRecord {
	out := make([]AppliedInputRecord, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, AppliedInputRecord{
			Tick:       in.Tick,
			PlayerID:   in.PlayerID,
			MoveDir:    in.MoveDir,
			IsFallback: in.IsFallback,
		})
	}
	sortAppliedInputRecords(out)
	return out
}

func sortAppliedInputRecords(records []AppliedInputRecord) {
	// Insertion sort is adequate: records arrive already close to sorted
	// (one tick at a time, already player-id ascending from the
	// pipeline's Consume), and match lengths are bounded by
	// match_duration_ticks * 2 players.
	for i := 1; i < len(records); i++ {
		j := i
		for j > 0 && less(records[j], records[j-1]) {
			records[j], records[j-1] = records[j-1], records[j]
			j--
		}
	}
}

func less(a, b AppliedInputRecord) bool {
	if a.Tick != b.Tick {
		return a.Tick < b.Tick
	}
	return a.PlayerID < b.PlayerID
}
