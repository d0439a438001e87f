// Package wsadapter adapts a gorilla/websocket connection to the
// transport.Peer interface. Every outbound message carries a "channel"
// field (control vs realtime) so a client can apply different
// reliability/backpressure handling to handshake/baseline traffic versus
// the high-frequency snapshot stream — two logical channels over the one
// physical connection.
package wsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"duelcore/transport"
)

// Channel tags an outbound frame's logical channel.
type Channel string

const (
	ChannelControl  Channel = "control"
	ChannelRealtime Channel = "realtime"
)

type envelope struct {
	Channel Channel         `json:"channel"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type inboundEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

const (
	kindClientHello = "client_hello"
	kindInputCmd    = "input_cmd"
)

// Peer adapts one *websocket.Conn to transport.Peer. Reads happen on a
// single background goroutine feeding a buffered channel; writes are
// serialized with a mutex since gorilla/websocket connections are not
// safe for concurrent writers.
type Peer struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	inbound chan transport.Inbound
	readErr chan error
}

// New wraps conn and starts its background read loop.
func New(conn *websocket.Conn) *Peer {
	p := &Peer{
		conn:    conn,
		inbound: make(chan transport.Inbound, 64),
		readErr: make(chan error, 1),
	}
	go p.readLoop()
	return p
}

func (p *Peer) readLoop() {
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			p.readErr <- err
			close(p.inbound)
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.Kind {
		case kindClientHello:
			var hello transport.ClientHello
			if err := json.Unmarshal(env.Payload, &hello); err != nil {
				continue
			}
			p.inbound <- transport.Inbound{Kind: transport.InboundHello, Hello: hello}
		case kindInputCmd:
			var cmd transport.InputCmd
			if err := json.Unmarshal(env.Payload, &cmd); err != nil {
				continue
			}
			p.inbound <- transport.Inbound{Kind: transport.InboundInput, Input: cmd}
		}
	}
}

func (p *Peer) Receive(ctx context.Context) (transport.Inbound, error) {
	select {
	case msg, ok := <-p.inbound:
		if !ok {
			select {
			case err := <-p.readErr:
				return transport.Inbound{}, err
			default:
				return transport.Inbound{}, transport.ErrPeerClosed
			}
		}
		return msg, nil
	case <-ctx.Done():
		return transport.Inbound{}, ctx.Err()
	}
}

func (p *Peer) send(channel Channel, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wsadapter: marshal %s payload: %w", kind, err)
	}
	env := envelope{Channel: channel, Kind: kind, Payload: body}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wsadapter: marshal envelope: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *Peer) SendWelcome(ctx context.Context, msg transport.ServerWelcome) error {
	return p.send(ChannelControl, "server_welcome", msg)
}

func (p *Peer) SendBaseline(ctx context.Context, msg transport.JoinBaseline) error {
	return p.send(ChannelControl, "join_baseline", msg)
}

// SendSnapshotBytes wraps an already-serialized snapshot payload in the
// realtime-channel envelope without re-marshaling it, preserving
// byte-identical delivery across peers for the snapshot body itself.
func (p *Peer) SendSnapshotBytes(ctx context.Context, payload []byte) error {
	env := envelope{Channel: ChannelRealtime, Kind: "snapshot", Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wsadapter: marshal snapshot envelope: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *Peer) Close() error {
	return p.conn.Close()
}
