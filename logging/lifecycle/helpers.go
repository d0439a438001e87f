package lifecycle

import (
	"context"

	"duelcore/logging"
)

const (
	// EventPlayerJoined is emitted when a player joins the world.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a player leaves the world.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventMatchAborted is emitted when the match never starts: the
	// connect timeout elapsed or a session disconnected before the
	// handshake completed. No artifact is written for this event.
	EventMatchAborted logging.EventType = "lifecycle.match_aborted"
	// EventMatchCompleted is emitted once a match's replay artifact has
	// been durably written, whatever the end reason.
	EventMatchCompleted logging.EventType = "lifecycle.match_completed"
)

// MatchAbortedPayload carries the stable log token operators grep for when
// a match never starts.
type MatchAbortedPayload struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// MatchAborted publishes an error event for a pre-match lifecycle abort.
func MatchAborted(ctx context.Context, pub logging.Publisher, payload MatchAbortedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMatchAborted,
		Severity: logging.SeverityError,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}

// MatchCompletedPayload summarizes how a match ended.
type MatchCompletedPayload struct {
	CheckpointTick uint64 `json:"checkpointTick"`
	EndReason      string `json:"endReason"`
}

// MatchCompleted publishes an info event once the replay artifact for a
// finished match has been written.
func MatchCompleted(ctx context.Context, pub logging.Publisher, payload MatchCompletedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMatchCompleted,
		Tick:     payload.CheckpointTick,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerJoinedPayload captures spawn metadata for a new player.
type PlayerJoinedPayload struct {
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// PlayerJoined publishes a player join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
