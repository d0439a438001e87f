// Package memtransport provides an in-memory transport.Peer for unit and
// integration tests, so the match loop can be driven synchronously with no
// sockets, no pacing, and no reliance on real network ordering.
package memtransport

import (
	"context"
	"sync"

	"duelcore/transport"
)

// Peer is an in-memory transport.Peer with no client on the other end:
// tests play the client side directly, feeding inbound messages via
// Inject and reading what the server sent via Welcomes, Baselines, and
// Snapshots.
type Peer struct {
	mu     sync.Mutex
	closed bool

	inbound   chan transport.Inbound
	welcomes  []transport.ServerWelcome
	baselines []transport.JoinBaseline
	snapshots [][]byte
}

// New constructs an unconnected memtransport.Peer with a buffered inbound
// queue.
func New() *Peer {
	return &Peer{inbound: make(chan transport.Inbound, 256)}
}

// Inject enqueues an inbound message as if it had arrived from the client.
func (p *Peer) Inject(msg transport.Inbound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.inbound <- msg
}

func (p *Peer) Receive(ctx context.Context) (transport.Inbound, error) {
	select {
	case msg, ok := <-p.inbound:
		if !ok {
			return transport.Inbound{}, transport.ErrPeerClosed
		}
		return msg, nil
	case <-ctx.Done():
		return transport.Inbound{}, ctx.Err()
	}
}

func (p *Peer) SendWelcome(ctx context.Context, msg transport.ServerWelcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrPeerClosed
	}
	p.welcomes = append(p.welcomes, msg)
	return nil
}

func (p *Peer) SendBaseline(ctx context.Context, msg transport.JoinBaseline) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrPeerClosed
	}
	p.baselines = append(p.baselines, msg)
	return nil
}

func (p *Peer) SendSnapshotBytes(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrPeerClosed
	}
	clone := append([]byte(nil), payload...)
	p.snapshots = append(p.snapshots, clone)
	return nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.inbound)
	return nil
}

// Snapshots returns every payload handed to SendSnapshotBytes, in order,
// for test assertions comparing byte-identical delivery across peers.
func (p *Peer) Snapshots() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.snapshots))
	copy(out, p.snapshots)
	return out
}

// Welcomes returns every ServerWelcome handed to SendWelcome, in order.
func (p *Peer) Welcomes() []transport.ServerWelcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transport.ServerWelcome, len(p.welcomes))
	copy(out, p.welcomes)
	return out
}

// Baselines returns every JoinBaseline handed to SendBaseline, in order.
func (p *Peer) Baselines() []transport.JoinBaseline {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transport.JoinBaseline, len(p.baselines))
	copy(out, p.baselines)
	return out
}
