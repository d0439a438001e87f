// Package match wires the kernel, pipeline, session binder, broadcast
// fanout, and replay recorder into a single-threaded, cooperatively staged
// tick loop: drain transport receive queues, run admission, consume
// applied inputs, step the kernel once, serialize and fan out one
// snapshot, then repeat. It is the glue layer; none of the
// determinism-critical logic lives here. Configuration arrives once, at
// construction — nothing reads the environment mid-tick.
package match

import (
	"errors"
	"hash/fnv"
	"time"

	"duelcore/internal/telemetry"
)

// Config is the single construction-time struct carrying every match
// tunable — tick rate, acceptance window, floor lead, rate limit, match
// duration, connect timeout — plus the seed and artifact destination.
// None of these fields are read again after construction; there is no
// mid-tick reconfiguration.
type Config struct {
	// Seed is the kernel's PRNG seed, recorded verbatim in the replay
	// artifact.
	Seed int64

	// TickRateHz is the fixed simulation rate; snapshot_rate_hz always
	// equals this in the current phase, so there is no separate field.
	TickRateHz int

	// MaxFutureTicks bounds the pipeline's future-tick acceptance window.
	MaxFutureTicks uint64

	// InputLeadTicks is the floor lead added to the post-step tick to
	// compute target_tick_floor. Fixed at 1 in the current phase.
	InputLeadTicks uint64

	// InputRateLimitPerSec bounds admitted messages per (session, tick)
	// after conversion via ceil(rate/tick_rate_hz).
	InputRateLimitPerSec int

	// MatchDurationTicks is the tick count of a complete match; reaching
	// it ends the match with EndComplete.
	MatchDurationTicks uint64

	// ConnectTimeout bounds how long the binder waits for a second
	// session before aborting with no artifact.
	ConnectTimeout time.Duration

	// TickDrainBound is the advisory per-tick transport drain bound: it
	// has no effect on correctness, only on how long a production tick
	// loop will wait for inbound messages before stepping.
	TickDrainBound time.Duration

	// ArtifactDir is the directory replay artifacts are written into.
	ArtifactDir string

	// MatchID addresses the persisted artifact; must satisfy
	// replay.MatchIDPattern.
	MatchID string

	// TestPlayerIDs overrides the binder's default {0, 1} assignment,
	// proving the kernel treats player id as a pure indexing key. Leave
	// nil in production.
	TestPlayerIDs []uint64

	// Metrics receives tick and admission counters as the match runs. May
	// be left nil, in which case Match records nothing.
	Metrics telemetry.Metrics
}

// ErrInvalidConfig is returned by New when a Config field fails validation
// cheap enough to catch before any session is ever accepted.
var ErrInvalidConfig = errors.New("match: invalid config")

// validate rejects configurations that could never produce a valid match,
// so failures surface at construction instead of mid-tick.
func (c Config) validate() error {
	if c.TickRateHz == 0 {
		return errors.New("match: tick_rate_hz must be non-zero")
	}
	if c.MatchDurationTicks == 0 {
		return errors.New("match: match_duration_ticks must be non-zero")
	}
	if c.TestPlayerIDs != nil && len(c.TestPlayerIDs) != 2 {
		return errors.New("match: test_player_ids override must name exactly two ids")
	}
	return nil
}

// DeriveSeed hashes a human-readable seed label (an operator-facing env
// var, say) into the int64 seed NewWorld expects, via FNV-1a, so the same
// label always yields the same match. The kernel takes exactly one PRNG
// seed for the whole World; the replay artifact records the derived value,
// never the label.
func DeriveSeed(label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}
