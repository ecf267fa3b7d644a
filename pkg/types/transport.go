package types

// WireKind discriminates the two kinds of frame a process exchanges
// over the transport: the startup readiness handshake and the
// protocol envelope itself.
type WireKind int

const (
	// ReadyFrame is the startup control frame: "I am ready".
	ReadyFrame WireKind = iota
	// ProtocolFrame carries an Envelope.
	ProtocolFrame
)

// WireMessage is the single object that crosses the transport in
// either direction. Keeping one wire shape (rather than a separate
// control-channel) means a process only needs one Listen() channel and
// one dispatch switch, the way the teacher dispatches on
// message.Header.Type.
type WireMessage struct {
	Kind     WireKind
	Envelope Envelope
}

// Received pairs an inbound WireMessage with the peer it arrived from.
type Received struct {
	From ProcessID
	Msg  WireMessage
}

// Transport is the external collaborator providing authenticated FIFO
// unicast send and an inbound callback channel. Its implementation
// (real sockets, in-memory channels for tests) is out of this stack's
// scope; the stack only depends on this contract.
type Transport interface {
	// Send is a best-effort unicast to a single peer.
	Send(peer ProcessID, msg WireMessage) error

	// Listen returns the channel of inbound messages. MemoryTransport
	// closes it on Close; TCPTransport does not close it.
	Listen() <-chan Received

	// Close releases the transport's resources.
	Close() error
}

// MetricsRow is one CSV row emitted per BRB-delivery, per the metrics
// sink contract: node_id, N, f, peer_count, latency_seconds,
// delta_message_count.
type MetricsRow struct {
	NodeID            ProcessID
	N                 int
	F                 int
	PeerCount         int
	LatencySeconds    float64
	DeltaMessageCount int
}

// MetricsSink records one row per BRB-delivery.
type MetricsSink interface {
	RecordDelivery(row MetricsRow)
}
