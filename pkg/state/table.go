// Package state holds the per-message state table shared by the
// DolevRC, BRB and RCO layers. Because all three layers key on the
// same (author_id, msg_id) pair, a single mapping from that key to one
// record is used rather than three tables per layer — this eliminates
// the risk of a message's Dolev fields and BRB fields ever drifting
// out of sync about which (author, msg_id) they describe.
package state

import "github.com/jabolina-labs/dolev-brb-rco/pkg/types"

// Entry is the per-message record. It is created lazily on first
// observation of a msg_id and retained for the process lifetime — v1
// performs no garbage collection, per the memory model.
//
// An Entry is exclusively mutated by the event-loop goroutine that
// owns the enclosing Table; no locking is used or needed, matching the
// single-threaded cooperative scheduling model.
type Entry struct {
	// Paths is the set of observed path tuples seen by DolevRC,
	// keyed by types.PathKey so duplicate observations are idempotent.
	Paths map[string][]types.ProcessID

	// DolevDelivered is true once f+1 node-disjoint paths have been
	// found for this message.
	DolevDelivered bool

	// EchoSenders is the set of distinct source ids from which an
	// ECHO envelope has been BRB-received.
	EchoSenders map[types.ProcessID]struct{}

	// ReadySenders is the set of distinct source ids from which a
	// READY envelope has been BRB-received.
	ReadySenders map[types.ProcessID]struct{}

	// SentEcho is true once this process has emitted its own ECHO.
	SentEcho bool

	// SentReady is true once this process has emitted its own READY.
	SentReady bool

	// BRBDelivered is true once BRB.deliver has fired for this
	// message. Transitions true exactly once.
	BRBDelivered bool
}

func newEntry() *Entry {
	return &Entry{
		Paths:        make(map[string][]types.ProcessID),
		EchoSenders:  make(map[types.ProcessID]struct{}),
		ReadySenders: make(map[types.ProcessID]struct{}),
	}
}

// Table is the process-owned mapping from message key to Entry.
type Table struct {
	entries map[types.MessageKey]*Entry
}

// NewTable creates an empty state table.
func NewTable() *Table {
	return &Table{entries: make(map[types.MessageKey]*Entry)}
}

// GetOrCreate returns the entry for key, creating and storing one on
// first observation.
func (t *Table) GetOrCreate(key types.MessageKey) *Entry {
	e, ok := t.entries[key]
	if !ok {
		e = newEntry()
		t.entries[key] = e
	}
	return e
}

// Get returns the entry for key and whether it exists, without
// creating one.
func (t *Table) Get(key types.MessageKey) (*Entry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Len reports how many distinct messages this table is tracking. Used
// only for diagnostics/tests; the table never shrinks.
func (t *Table) Len() int {
	return len(t.entries)
}

// InsertPath records a newly observed DolevRC path, returning whether
// it was a new observation (false for a duplicate, idempotent, insert).
func (e *Entry) InsertPath(path []types.ProcessID) bool {
	key := types.PathKey(path)
	if _, exists := e.Paths[key]; exists {
		return false
	}
	e.Paths[key] = path
	return true
}
