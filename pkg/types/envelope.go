package types

import "fmt"

// ProcessID identifies a single process in the fixed-membership network.
// Valid values lie in [0, N).
type ProcessID int

// Phase is which step of the Bracha automaton an envelope carries.
// Phase only ever advances at a given process: SEND may trigger ECHO
// emission, ECHO may trigger READY, never the reverse.
type Phase int

const (
	// SendPhase carries the original application message, wrapped once
	// by BRB.broadcast.
	SendPhase Phase = iota
	// EchoPhase carries a rebroadcast acknowledging a SEND.
	EchoPhase
	// ReadyPhase carries a rebroadcast acknowledging an ECHO quorum
	// (or, transitively, a READY quorum).
	ReadyPhase
)

func (p Phase) String() string {
	switch p {
	case SendPhase:
		return "SEND"
	case EchoPhase:
		return "ECHO"
	case ReadyPhase:
		return "READY"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Envelope is the wire object propagated by all three layers. The same
// struct is re-wrapped at every layer rather than modelled as three
// distinct message types, because every layer keys its state off the
// same (AuthorID, MsgID) pair and a single shape keeps that pairing
// obvious at the call site.
type Envelope struct {
	// Content is the opaque payload chosen by the application.
	Content []byte

	// MsgID is the globally unique id of the *original* application
	// message. It is stable across every layer re-wrapping of this
	// message — SEND, ECHO and READY envelopes for the same broadcast
	// all carry the same MsgID. Generated once, by RCO.Broadcast, with
	// github.com/google/uuid; the original implementation's "+1 per
	// rebroadcast" derived-id scheme is not reproduced here, per the
	// hygiene note in the source spec: it is vestigial, and a stable
	// id is what every layer actually needs.
	MsgID string

	// Phase is the BRB phase this envelope carries.
	Phase Phase

	// AuthorID is the process that invoked RCO.Broadcast.
	AuthorID ProcessID

	// SourceID is the process that most recently rebroadcast this
	// envelope at the BRB layer (the echo/ready sender). It is what a
	// receiver inserts into EchoSenders/ReadySenders, deduplicating by
	// source.
	SourceID ProcessID

	// Path is the ordered sequence of process ids traversed at the
	// DolevRC layer since the last BRB rebroadcast. It is cleared
	// whenever a process emits a new BRB phase, since that emission
	// starts a fresh DolevRC flood.
	Path []ProcessID

	// VectorClock is the snapshot of the author's vector clock taken
	// at RCO.Broadcast time.
	VectorClock []uint64

	// CausalQueue is the ordered list of successor process ids that
	// must each broadcast next, used to build the deterministic
	// causal pipeline described in the RCO module.
	CausalQueue []ProcessID
}

// Clone returns a deep copy of the envelope, safe to mutate without
// affecting the caller's copy. Every layer that rewraps an envelope
// (appending to Path, clearing it, swapping Phase/SourceID) starts from
// a clone so that a single received envelope can be forwarded to many
// neighbours without them observing each other's mutations.
func (e Envelope) Clone() Envelope {
	c := e
	if e.Content != nil {
		c.Content = append([]byte(nil), e.Content...)
	}
	if e.Path != nil {
		c.Path = append([]ProcessID(nil), e.Path...)
	}
	if e.VectorClock != nil {
		c.VectorClock = append([]uint64(nil), e.VectorClock...)
	}
	if e.CausalQueue != nil {
		c.CausalQueue = append([]ProcessID(nil), e.CausalQueue...)
	}
	return c
}

// WithPath returns a clone of the envelope carrying the given path.
func (e Envelope) WithPath(path []ProcessID) Envelope {
	c := e.Clone()
	c.Path = path
	return c
}

// Rewrap returns a clone of the envelope as emitted by a new BRB phase:
// the path is cleared (a new phase starts a fresh DolevRC flood) and
// SourceID is set to the rebroadcasting process.
func (e Envelope) Rewrap(phase Phase, source ProcessID) Envelope {
	c := e.Clone()
	c.Phase = phase
	c.SourceID = source
	c.Path = nil
	return c
}

// PathKey returns a stable string key for a path, used for set-like
// de-duplication of observed DolevRC paths. Two distinct path slices
// with the same elements in the same order produce the same key.
func PathKey(path []ProcessID) string {
	b := make([]byte, 0, len(path)*4)
	for _, p := range path {
		b = append(b, byte(p>>24), byte(p>>16), byte(p>>8), byte(p))
		b = append(b, '/')
	}
	return string(b)
}

// MessageKey uniquely identifies the per-message state entry shared by
// all three layers, keyed by (author_id, original msg_id) as required
// by the data model.
type MessageKey struct {
	Author ProcessID
	MsgID  string
}

// KeyOf extracts the shared state-table key from an envelope.
func KeyOf(e Envelope) MessageKey {
	return MessageKey{Author: e.AuthorID, MsgID: e.MsgID}
}
