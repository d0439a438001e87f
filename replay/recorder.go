package replay

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/iancoleman/orderedmap"

	replaylog "duelcore/logging/replay"

	"duelcore/kernel"
	"duelcore/logging"
	"duelcore/pipeline"
)

// Recorder buffers a match's applied-input stream in memory and writes one
// Artifact to disk when the match ends. It never writes incrementally: the
// artifact is a single self-sufficient record, flushed once, at match end.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	pub     logging.Publisher
	matchID string

	formatVersion int
	tickRateHz    int
	seed          int64
	spawnOrder    []uint64
	playerEntity  []PlayerEntity
	tuning        *orderedmap.OrderedMap
	baseline      kernel.Baseline
	fingerprint   BuildFingerprint

	inputs []pipeline.AppliedInput

	testMode     bool
	testAssigned []uint64
}

// NewRecorder constructs a Recorder that will write into dir. matchID must
// satisfy MatchIDPattern; validation happens here rather than at flush time
// so a malformed id fails fast, before a match is ever played.
func NewRecorder(dir, matchID string, pub logging.Publisher, seed int64, tickRateHz int, fingerprint BuildFingerprint) (*Recorder, error) {
	if !MatchIDPattern.MatchString(matchID) {
		return nil, fmt.Errorf("replay: match id %q does not satisfy the filesystem/URL-safe 16-64 char pattern", matchID)
	}
	if pub == nil {
		pub = logging.NopPublisher{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("replay: create artifact directory: %w", err)
	}
	return &Recorder{
		dir:           dir,
		pub:           pub,
		matchID:       matchID,
		formatVersion: 0,
		tickRateHz:    tickRateHz,
		seed:          seed,
		tuning:        DefaultTuningParams(),
		fingerprint:   fingerprint,
	}, nil
}

// SetTestMode flags the artifact as produced under a test-only player id
// override and records which ids were assigned, so a reader can tell a
// non-contiguous id set apart from a corrupted one.
func (r *Recorder) SetTestMode(assignedPlayerIDs []uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.testMode = true
	r.testAssigned = append([]uint64(nil), assignedPlayerIDs...)
}

// RecordSpawn appends playerID to the recorded spawn order and its
// resulting entityID to the player→entity map. Spawns must be recorded in
// the same order SpawnCharacter was actually called in.
func (r *Recorder) RecordSpawn(playerID, entityID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawnOrder = append(r.spawnOrder, playerID)
	r.playerEntity = append(r.playerEntity, PlayerEntity{PlayerID: playerID, EntityID: entityID})
}

// RecordBaseline captures the initial baseline, taken once at tick 0 after
// all spawns are complete.
func (r *Recorder) RecordBaseline(b kernel.Baseline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseline = b
}

// RecordAppliedInputs appends one tick's worth of applied inputs to the
// in-memory buffer, exactly the slice pipeline.Consume returned.
func (r *Recorder) RecordAppliedInputs(inputs []pipeline.AppliedInput) {
	if len(inputs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, inputs...)
}

// Finish builds the final Artifact, writes it to a gzip-compressed JSON
// file named from the match id (validated by NewRecorder), and returns the
// path written.
// The file is created with O_EXCL so a colliding match id fails loudly
// instead of silently overwriting a prior match's artifact.
func (r *Recorder) Finish(ctx context.Context, finalDigest uint64, checkpointTick uint64, reason EndReason) (string, error) {
	r.mu.Lock()
	playerEntity := append([]PlayerEntity(nil), r.playerEntity...)
	sort.Slice(playerEntity, func(i, j int) bool { return playerEntity[i].PlayerID < playerEntity[j].PlayerID })
	artifact := Artifact{
		FormatVersion:       r.formatVersion,
		DigestAlgorithm:     kernel.DigestAlgorithm,
		PRNGAlgorithm:       kernel.PRNGAlgorithm,
		TickRateHz:          r.tickRateHz,
		Seed:                r.seed,
		SpawnOrder:          append([]uint64(nil), r.spawnOrder...),
		PlayerEntity:        playerEntity,
		TuningParams:        r.tuning,
		InitialBaseline:     r.baseline,
		AppliedInputs:       appliedInputRecords(r.inputs),
		BuildFingerprint:    r.fingerprint,
		FinalDigest:         finalDigest,
		CheckpointTick:      checkpointTick,
		EndReason:           reason,
		TestMode:            r.testMode,
		TestAssignedPlayers: append([]uint64(nil), r.testAssigned...),
	}
	matchID := r.matchID
	r.mu.Unlock()

	path := filepath.Join(r.dir, matchID+".replay.json.gz")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("replay: open artifact file (collision or permission error): %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(artifact); err != nil {
		gz.Close()
		return "", fmt.Errorf("replay: encode artifact: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("replay: flush artifact: %w", err)
	}

	info, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	replaylog.ArtifactWritten(ctx, r.pub, replaylog.ArtifactWrittenPayload{
		MatchID:        matchID,
		Path:           path,
		CheckpointTick: checkpointTick,
		EndReason:      string(reason),
		Bytes:          size,
	}, nil)

	return path, nil
}
