package match

import (
	"context"
	"errors"
	"time"

	"duelcore/pipeline"
	"duelcore/replay"
	"duelcore/transport"
)

// AwaitSecondPeer blocks until BindPeer has admitted the second session
// (the match has started) or cfg.ConnectTimeout elapses first, in which
// case it returns ErrAborted and the match must never be started: no
// artifact is ever written for a match with fewer than two sessions.
func (m *Match) AwaitSecondPeer(ctx context.Context) error {
	deadline := time.NewTimer(m.cfg.ConnectTimeout)
	defer deadline.Stop()

	select {
	case <-m.startedCh:
		return nil
	case <-deadline.C:
		m.Abort(ctx, "connect_timeout")
		return &ErrAborted{Reason: "connect_timeout"}
	case <-ctx.Done():
		m.Abort(ctx, "context_cancelled")
		return &ErrAborted{Reason: "context_cancelled"}
	}
}

// disconnectError signals that a peer's Receive or Send failed mid-match;
// Run treats it as an in-match disconnect honored at the next tick
// boundary, never mid-step.
type disconnectError struct {
	PlayerID uint64
	Cause    error
}

func (e *disconnectError) Error() string {
	return "match: peer disconnected: " + e.Cause.Error()
}

func (e *disconnectError) Unwrap() error { return e.Cause }

// drainOnce pulls every immediately-available inbound message off each
// bound peer, within the advisory per-tick drain bound, and feeds
// InputCmd frames to the pipeline. A ClientHello outside the handshake
// window is ignored (the binder already gated it). A Receive error other
// than a context deadline is reported as a disconnect.
func (m *Match) drainOnce(ctx context.Context) error {
	m.mu.Lock()
	peers := make(map[uint64]transport.Peer, len(m.peers))
	for id, p := range m.peers {
		peers[id] = p
	}
	bound := m.cfg.TickDrainBound
	m.mu.Unlock()

	drainCtx := ctx
	var cancel context.CancelFunc
	if bound > 0 {
		drainCtx, cancel = context.WithTimeout(ctx, bound)
		defer cancel()
	}

	for playerID, peer := range peers {
		for {
			inbound, err := peer.Receive(drainCtx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					break
				}
				return &disconnectError{PlayerID: playerID, Cause: err}
			}
			if inbound.Kind != transport.InboundInput {
				continue
			}
			m.Admit(ctx, playerID, pipeline.RawInput{
				Tick:     inbound.Input.Tick,
				InputSeq: inbound.Input.InputSeq,
				MoveDir:  inbound.Input.MoveDir,
			})
		}
	}
	return nil
}

// Run drives the match to completion: a fixed-rate ticker loop that
// drains transport input, steps the kernel once per tick, and broadcasts
// the resulting snapshot, until match_duration_ticks ticks have been
// processed (EndComplete) or a peer disconnects (EndDisconnect at the
// boundary of the tick that was in flight). It writes the replay artifact
// exactly once, on the way out, whichever way the match ends. Disconnects
// fold into the same per-tick boundary rather than preempting a step in
// progress.
func (m *Match) Run(ctx context.Context) (string, error) {
	ticker := time.NewTicker(time.Second / time.Duration(m.cfg.TickRateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return m.Finish(ctx, replay.EndDisconnect)
		case <-ticker.C:
			if err := m.drainOnce(ctx); err != nil {
				var disc *disconnectError
				if errors.As(err, &disc) {
					_ = m.binder.Disconnect(ctx, disc.PlayerID, "transport_closed")
					if _, stepErr := m.Step(ctx); stepErr != nil {
						// The step that was already in flight still
						// completes before the artifact is written.
					}
					return m.Finish(ctx, replay.EndDisconnect)
				}
				return "", err
			}

			snap, err := m.Step(ctx)
			if err != nil {
				var disc *disconnectError
				if errors.As(err, &disc) {
					_ = m.binder.Disconnect(ctx, disc.PlayerID, "transport_closed")
					return m.Finish(ctx, replay.EndDisconnect)
				}
				return "", err
			}

			if snap.Tick >= m.cfg.MatchDurationTicks {
				return m.Finish(ctx, replay.EndComplete)
			}
		}
	}
}
