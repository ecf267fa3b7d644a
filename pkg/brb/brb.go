// Package brb implements Bracha's three-phase reliable broadcast
// (SEND -> ECHO -> READY) atop DolevRC, guaranteeing totality and
// consistency even when the author of a message is Byzantine.
package brb

import (
	"fmt"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/state"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// Broadcaster is the downward capability this layer needs: flood an
// envelope via DolevRC.
type Broadcaster interface {
	Broadcast(env types.Envelope) error
}

// DeliverFunc is the upcall fired exactly once per (author, msg_id)
// when |ready_senders| reaches 2f+1. The delivered envelope always
// carries Phase == SendPhase and the original MsgID.
type DeliverFunc func(env types.Envelope)

// Layer is one process's instance of the Bracha automaton.
type Layer struct {
	self  types.ProcessID
	cfg   types.Configuration
	table *state.Table
	below Broadcaster
	log   types.Logger

	deliver DeliverFunc
}

// New constructs a BRB layer.
func New(self types.ProcessID, cfg types.Configuration, table *state.Table, below Broadcaster, log types.Logger, deliver DeliverFunc) *Layer {
	return &Layer{self: self, cfg: cfg, table: table, below: below, log: log, deliver: deliver}
}

// Broadcast wraps content as a SEND envelope and hands it down to
// DolevRC, per "RCO hands to BRB.broadcast, which wraps it as a SEND
// and invokes DolevRC.broadcast".
func (l *Layer) Broadcast(env types.Envelope) error {
	send := env.Rewrap(types.SendPhase, l.self)
	return l.below.Broadcast(send)
}

// OnDolevDeliver is the common upcall DolevRC invokes for every phase;
// it dispatches to the matching handler below, per the envelope
// dispatch design (a single receive path dispatching by phase).
func (l *Layer) OnDolevDeliver(env types.Envelope) {
	switch env.Phase {
	case types.SendPhase:
		l.onSend(env)
	case types.EchoPhase:
		l.onEcho(env)
	case types.ReadyPhase:
		l.onReady(env)
	default:
		err := fmt.Errorf("%w: phase %v for msg %s", types.ErrUnknownPhase, env.Phase, env.MsgID)
		l.log.Warnf("brb: %v", err)
	}
}

// onSend: upon event <al, Deliver | p, [SEND, m]> and not sentEcho:
// sentEcho <- true; broadcast [ECHO, m].
func (l *Layer) onSend(env types.Envelope) {
	entry := l.table.GetOrCreate(types.KeyOf(env))
	if entry.SentEcho {
		return
	}
	entry.SentEcho = true
	echo := env.Rewrap(types.EchoPhase, l.self)
	if err := l.below.Broadcast(echo); err != nil {
		l.log.Warnf("brb: echo broadcast for %s failed: %v", env.MsgID, err)
	}
}

// onEcho: record the sender in echo_senders; once the (N+f+1)/2
// majority is reached, emit READY. O1, if enabled, amplifies: once
// f+1 echoes are seen (a weaker bound reachable well before the
// majority threshold, since it only requires one correct process to
// have already echoed), and this process has not echoed yet, it
// echoes immediately rather than waiting on its own SEND delivery or
// the majority threshold.
func (l *Layer) onEcho(env types.Envelope) {
	key := types.KeyOf(env)
	entry := l.table.GetOrCreate(key)
	entry.EchoSenders[env.SourceID] = struct{}{}

	if l.cfg.Optim.O1 && !entry.SentEcho && len(entry.EchoSenders) >= l.cfg.DolevQuorum() {
		entry.SentEcho = true
		echo := env.Rewrap(types.EchoPhase, l.self)
		if err := l.below.Broadcast(echo); err != nil {
			l.log.Warnf("brb: O1 echo broadcast for %s failed: %v", env.MsgID, err)
		}
	}

	l.maybeSendReady(env, entry, len(entry.EchoSenders), l.cfg.ReadyThreshold())
}

// onReady: record the sender in ready_senders. Two independent
// thresholds are checked on every READY: relay once f+1 readys are
// seen (even without ever having echoed — a process that missed the
// echo majority must still be able to relay READY so the network
// converges), and deliver once 2f+1 are seen.
//
// O1's READY branch is left as a stub matching the non-optimised
// behaviour: the design notes an unresolved condition for the combined
// ECHO+READY emission case and explicitly say not to guess it.
func (l *Layer) onReady(env types.Envelope) {
	key := types.KeyOf(env)
	entry := l.table.GetOrCreate(key)
	entry.ReadySenders[env.SourceID] = struct{}{}

	l.maybeSendReady(env, entry, len(entry.ReadySenders), l.cfg.ReadyQuorum())

	if !entry.BRBDelivered && len(entry.ReadySenders) >= l.cfg.DeliverQuorum() {
		entry.BRBDelivered = true
		delivered := env.Clone()
		delivered.Phase = types.SendPhase
		l.deliver(delivered)
	}
}

func (l *Layer) maybeSendReady(env types.Envelope, entry *state.Entry, count, threshold int) {
	if entry.SentReady || count < threshold {
		return
	}
	entry.SentReady = true
	ready := env.Rewrap(types.ReadyPhase, l.self)
	if err := l.below.Broadcast(ready); err != nil {
		l.log.Warnf("brb: ready broadcast for %s failed: %v", env.MsgID, err)
	}
}
