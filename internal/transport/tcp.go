package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// wireFrame is the JSON-serialised form of a types.WireMessage, one
// per line, the way the teacher's own ReliableTransport marshals each
// outbound Message to JSON before handing it to the underlying
// transport.
type wireFrame struct {
	Kind     types.WireKind `json:"kind"`
	Envelope types.Envelope `json:"envelope,omitempty"`
}

// PeerDialer resolves a process id to a dialable TCP address. A real
// deployment would source this from the authenticated membership
// service the design treats as external; here it is a plain static
// map supplied by the caller (cmd/node).
type PeerDialer func(peer types.ProcessID) (addr string, err error)

// TCPTransport is a minimal, unauthenticated stand-in for the
// out-of-scope peer-to-peer transport layer. It exists so cmd/node can
// run the stack over real sockets for a demo; it is explicitly not the
// authenticated production transport spec.md describes as external.
type TCPTransport struct {
	self   types.ProcessID
	dialer PeerDialer
	log    types.Logger

	listener net.Listener
	producer chan types.Received

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conns  map[types.ProcessID]net.Conn
}

// NewTCPTransport binds listenAddr and starts accepting connections
// from peers, decoding each as a types.Received.
func NewTCPTransport(self types.ProcessID, listenAddr string, dialer PeerDialer, log types.Logger) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", listenAddr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &TCPTransport{
		self:     self,
		dialer:   dialer,
		log:      log,
		listener: ln,
		producer: make(chan types.Received, 4096),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[types.ProcessID]net.Conn),
	}
	go t.acceptLoop()
	return t, nil
}

func (t *TCPTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
				t.log.Warnf("transport %d: accept failed: %v", t.self, err)
				return
			}
		}
		go t.readLoop(conn)
	}
}

func (t *TCPTransport) readLoop(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var envelope struct {
			From  types.ProcessID `json:"from"`
			Frame wireFrame       `json:"frame"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &envelope); err != nil {
			t.log.Warnf("transport %d: malformed frame: %v", t.self, err)
			continue
		}
		t.producer <- types.Received{
			From: envelope.From,
			Msg:  types.WireMessage{Kind: envelope.Frame.Kind, Envelope: envelope.Frame.Envelope},
		}
	}
}

// Send implements types.Transport, dialing (and caching) a connection
// to peer on first use.
func (t *TCPTransport) Send(peer types.ProcessID, msg types.WireMessage) error {
	conn, err := t.connFor(peer)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransportSend, err)
	}
	payload := struct {
		From  types.ProcessID `json:"from"`
		Frame wireFrame       `json:"frame"`
	}{
		From:  t.self,
		Frame: wireFrame{Kind: msg.Kind, Envelope: msg.Envelope},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", types.ErrTransportSend, err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		t.dropConn(peer)
		return fmt.Errorf("%w: %v", types.ErrTransportSend, err)
	}
	return nil
}

func (t *TCPTransport) connFor(peer types.ProcessID) (net.Conn, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if c, ok := t.conns[peer]; ok {
		return c, nil
	}
	addr, err := t.dialer(peer)
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	t.conns[peer] = conn
	return conn, nil
}

func (t *TCPTransport) dropConn(peer types.ProcessID) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	delete(t.conns, peer)
}

// Listen implements types.Transport.
func (t *TCPTransport) Listen() <-chan types.Received {
	return t.producer
}

// Close implements types.Transport.
func (t *TCPTransport) Close() error {
	t.cancel()
	t.connMu.Lock()
	for _, c := range t.conns {
		c.Close()
	}
	t.connMu.Unlock()
	return t.listener.Close()
}
