// Package transport provides the out-of-scope "peer-to-peer transport
// layer" collaborator the stack depends on via types.Transport: an
// in-memory implementation for tests, and a minimal TCP implementation
// for cmd/node. Neither is the authenticated, production transport
// spec.md treats as external — both exist only so the protocol stack
// can be exercised end to end.
package transport

import (
	"fmt"
	"sync"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// MemoryNetwork is a shared, in-process switchboard connecting a set
// of MemoryTransport endpoints by process id. It is authenticated and
// FIFO per ordered pair by construction: each endpoint has a single
// buffered inbox channel, which keeps every sender's messages in send
// order.
type MemoryNetwork struct {
	mu    sync.Mutex
	boxes map[types.ProcessID]*MemoryTransport
}

// NewMemoryNetwork creates an empty switchboard.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{boxes: make(map[types.ProcessID]*MemoryTransport)}
}

// Register creates and returns the transport endpoint for id. Call
// once per process before wiring peers.
func (n *MemoryNetwork) Register(id types.ProcessID) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := &MemoryTransport{
		self:    id,
		network: n,
		inbox:   make(chan types.Received, 4096),
	}
	n.boxes[id] = t
	return t
}

func (n *MemoryNetwork) deliverTo(peer types.ProcessID, r types.Received) error {
	n.mu.Lock()
	t := n.boxes[peer]
	n.mu.Unlock()
	if t == nil {
		return fmt.Errorf("transport: unknown peer %d", peer)
	}
	select {
	case t.inbox <- r:
		return nil
	default:
		return fmt.Errorf("transport: inbox for peer %d full", peer)
	}
}

// MemoryTransport is one process's endpoint on a MemoryNetwork. Sends
// never block the caller's goroutine beyond a channel push, matching
// the "only outbound send calls yield" rule of the concurrency model.
type MemoryTransport struct {
	self    types.ProcessID
	network *MemoryNetwork
	inbox   chan types.Received
	closeMu sync.Mutex
	closed  bool
}

// Send implements types.Transport.
func (t *MemoryTransport) Send(peer types.ProcessID, msg types.WireMessage) error {
	return t.network.deliverTo(peer, types.Received{From: t.self, Msg: msg})
}

// Listen implements types.Transport.
func (t *MemoryTransport) Listen() <-chan types.Received {
	return t.inbox
}

// Close implements types.Transport.
func (t *MemoryTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbox)
	}
	return nil
}
