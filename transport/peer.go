// Package transport defines the one dynamic-dispatch seam of the server:
// a narrow Peer interface between the match loop and whatever carries
// bytes to and from a client. Everything else in this module (kernel,
// pipeline, session, broadcast, replay) owns its state concretely and
// talks to a Peer only through this interface — one implementor in
// production (wsadapter), one in-memory fake for tests (memtransport).
package transport

import (
	"context"
	"errors"

	"duelcore/kernel"
)

// ErrPeerClosed is returned by Send/Receive once a Peer's connection has
// been closed, locally or remotely.
var ErrPeerClosed = errors.New("transport: peer closed")

// ClientHello is the first message a client must send.
type ClientHello struct {
	ProtocolVersion int `json:"protocolVersion"`
}

// ServerWelcome is sent to each session once both sessions are bound,
// carrying the assigned player id, the match's fixed tick rate, and the
// floor the client must observe from match start.
type ServerWelcome struct {
	PlayerID        uint64 `json:"playerId"`
	EntityID        uint64 `json:"entityId"`
	TickRateHz      int    `json:"tickRateHz"`
	TargetTickFloor uint64 `json:"targetTickFloor"`
}

// JoinBaseline carries the initial world state once both sessions are bound.
type JoinBaseline struct {
	Tick     uint64                `json:"tick"`
	Entities []kernel.EntityRecord `json:"entities"`
	Digest   uint64                `json:"digest"`
}

// InputCmd is a client's per-tick intent. It carries no player id: the
// server binds identity from the session the message arrived on.
type InputCmd struct {
	Tick     uint64      `json:"tick"`
	InputSeq uint64      `json:"inputSeq"`
	MoveDir  kernel.Vec2 `json:"moveDir"`
}

// Snapshot is the server's per-tick broadcast payload. Its bytes are
// produced once per tick by broadcast.Fanout and handed unmodified to
// every Peer.
type Snapshot struct {
	Tick            uint64                `json:"tick"`
	Entities        []kernel.EntityRecord `json:"entities"`
	Digest          uint64                `json:"digest"`
	TargetTickFloor uint64                `json:"targetTickFloor"`
}

// InboundKind discriminates the frames a Peer can receive from a client.
type InboundKind int

const (
	InboundHello InboundKind = iota
	InboundInput
)

// Inbound is one decoded message received from a client, tagged by kind so
// the match loop can dispatch without a type switch on every call site.
type Inbound struct {
	Kind  InboundKind
	Hello ClientHello
	Input InputCmd
}

// Peer is the narrow interface the match loop uses to talk to one client
// connection. Implementations (wsadapter, memtransport) own the wire
// format entirely; the match loop never touches raw bytes.
type Peer interface {
	// Receive blocks until one inbound message is available, ctx is
	// cancelled, or the peer closes. It never blocks across tick
	// boundaries for longer than the per-tick drain bound enforced by the
	// caller's context deadline.
	Receive(ctx context.Context) (Inbound, error)

	// SendWelcome, SendBaseline, and SendSnapshotBytes push one outbound
	// message. SendSnapshotBytes is called with byte-identical payloads
	// across every Peer in a match for the same tick, so implementations
	// must not re-serialize or otherwise transform payload.
	SendWelcome(ctx context.Context, msg ServerWelcome) error
	SendBaseline(ctx context.Context, msg JoinBaseline) error
	SendSnapshotBytes(ctx context.Context, payload []byte) error

	Close() error
}
