// Package replay publishes telemetry for artifact persistence and
// verification outcomes.
package replay

import (
	"context"

	"duelcore/logging"
)

const (
	// EventArtifactWritten is emitted once a replay artifact has been
	// flushed to disk.
	EventArtifactWritten logging.EventType = "replay.artifact_written"
	// EventVerificationFailed is emitted when the verifier aborts at any
	// of its ordered steps.
	EventVerificationFailed logging.EventType = "replay.verification_failed"
	// EventVerificationPassed is emitted when both anchors match.
	EventVerificationPassed logging.EventType = "replay.verification_passed"
	// EventFingerprintMismatch is emitted in development-mode verification
	// when the artifact was produced by a different binary but the run
	// continues anyway.
	EventFingerprintMismatch logging.EventType = "replay.fingerprint_mismatch"
)

// ArtifactWrittenPayload describes a persisted artifact.
type ArtifactWrittenPayload struct {
	MatchID        string `json:"matchId"`
	Path           string `json:"path"`
	CheckpointTick uint64 `json:"checkpointTick"`
	EndReason      string `json:"endReason"`
	Bytes          int64  `json:"bytes"`
}

// ArtifactWritten publishes an info event for a completed artifact write.
func ArtifactWritten(ctx context.Context, pub logging.Publisher, payload ArtifactWrittenPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventArtifactWritten,
		Tick:     payload.CheckpointTick,
		Severity: logging.SeverityInfo,
		Category: "replay",
		Payload:  payload,
		Extra:    extra,
	})
}

// VerificationFailedPayload identifies the step at which verification aborted.
type VerificationFailedPayload struct {
	MatchID string `json:"matchId"`
	Step    string `json:"step"`
	Reason  string `json:"reason"`
}

// VerificationFailed publishes an error event for a failed verification run.
func VerificationFailed(ctx context.Context, pub logging.Publisher, payload VerificationFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventVerificationFailed,
		Severity: logging.SeverityError,
		Category: "replay",
		Payload:  payload,
		Extra:    extra,
	})
}

// FingerprintMismatchPayload names the two binary hashes that disagreed.
type FingerprintMismatchPayload struct {
	Recorded string `json:"recorded"`
	Current  string `json:"current"`
}

// FingerprintMismatch publishes a warn event for a tolerated build
// fingerprint mismatch.
func FingerprintMismatch(ctx context.Context, pub logging.Publisher, payload FingerprintMismatchPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFingerprintMismatch,
		Severity: logging.SeverityWarn,
		Category: "replay",
		Payload:  payload,
		Extra:    extra,
	})
}

// VerificationPassedPayload identifies a successfully verified artifact.
type VerificationPassedPayload struct {
	MatchID        string `json:"matchId"`
	CheckpointTick uint64 `json:"checkpointTick"`
}

// VerificationPassed publishes an info event for a successful verification.
func VerificationPassed(ctx context.Context, pub logging.Publisher, payload VerificationPassedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventVerificationPassed,
		Tick:     payload.CheckpointTick,
		Severity: logging.SeverityInfo,
		Category: "replay",
		Payload:  payload,
		Extra:    extra,
	})
}
