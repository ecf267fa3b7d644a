// Package dolev implements Dolev Reliable Communication: reliable
// point-to-point message propagation in a partially connected graph by
// flooding along node-disjoint paths. Delivery requires f+1
// node-disjoint paths from the source.
package dolev

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/helper"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/state"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// Sender is the minimal outbound capability the layer needs: unicast
// one envelope to one peer. It is satisfied by a types.Transport, kept
// narrow here so this layer does not depend on Listen()/Close().
type Sender interface {
	Send(peer types.ProcessID, msg types.WireMessage) error
}

// DeliverFunc is the upcall fired when the disjoint-paths predicate is
// met for a message (or immediately, for a process's own broadcast).
// The next layer (BRB) is expected to dispatch further by Phase.
type DeliverFunc func(env types.Envelope)

// Malicious configures the Byzantine behaviour this process injects at
// the DolevRC boundary, per the component design. It is configuration,
// never part of the correctness contract the layer itself reasons
// about.
type Malicious struct {
	Mode types.MaliciousMode
	// FanoutCap bounds how many peers a malicious broadcast/forward
	// reaches, regardless of how many peers exist.
	FanoutCap int
}

// Layer is one process's instance of DolevRC.
type Layer struct {
	self   types.ProcessID
	peers  []types.ProcessID
	f      int
	table  *state.Table
	sender Sender
	log    types.Logger
	mal    Malicious

	deliver DeliverFunc
}

// New constructs a DolevRC layer. deliver is invoked for every message
// that becomes deliverable, including the source's own broadcasts.
func New(self types.ProcessID, peers []types.ProcessID, f int, table *state.Table, sender Sender, log types.Logger, mal Malicious, deliver DeliverFunc) *Layer {
	return &Layer{
		self:    self,
		peers:   peers,
		f:       f,
		table:   table,
		sender:  sender,
		log:     log,
		mal:     mal,
		deliver: deliver,
	}
}

// Broadcast floods env to every peer with an empty Path and fires the
// local Deliver upcall immediately: the source is trivially reachable
// via f+1 disjoint paths from itself, so it never waits on its own
// flood.
func (l *Layer) Broadcast(env types.Envelope) error {
	out := env.WithPath(nil)

	if l.mal.Mode == types.MaliciousFabricate {
		out = fabricate(out)
	}

	targets := l.peers
	if l.mal.Mode != types.MaliciousOff && l.mal.FanoutCap < len(targets) {
		targets = targets[:l.mal.FanoutCap]
	}

	var errs error
	for _, peer := range targets {
		if err := l.sender.Send(peer, types.WireMessage{Kind: types.ProtocolFrame, Envelope: out}); err != nil {
			l.log.Warnf("dolev: broadcast to %d failed: %v", peer, err)
			errs = multierror.Append(errs, fmt.Errorf("peer %d: %w", peer, err))
		}
	}

	l.deliver(out)
	return errs
}

// Receive processes an envelope arriving from peer q, per the
// component design:
//
//  1. new_path = path ++ [q].
//  2. Insert new_path into the state entry's Paths set.
//  3. Forward to every neighbour not already on new_path.
//  4. If not yet delivered and the disjoint-paths predicate now holds,
//     deliver.
//
// A malicious process in tamper mode rewrites Content before
// step 3's forward — the open question in the design notes says
// tampered forwards still count toward this process's own
// path-disjointness bookkeeping upstream (validating envelope
// integrity would need signatures, out of scope), but note that a
// *correct* downstream process recomputes its own path set from
// what it actually receives, so a tampered forward only ever
// corrupts paths that route through the tamperer.
func (l *Layer) Receive(from types.ProcessID, env types.Envelope) {
	newPath := append(append([]types.ProcessID(nil), env.Path...), from)

	key := types.KeyOf(env)
	entry := l.table.GetOrCreate(key)
	entry.InsertPath(newPath)

	forwardEnv := env.WithPath(newPath)
	if l.mal.Mode == types.MaliciousTamper {
		forwardEnv = tamper(forwardEnv)
	}

	targets := l.peers
	if l.mal.Mode != types.MaliciousOff && l.mal.FanoutCap < len(targets) {
		targets = targets[:l.mal.FanoutCap]
	}
	for _, n := range targets {
		if n == l.self || contains(newPath, n) {
			continue
		}
		if err := l.sender.Send(n, types.WireMessage{Kind: types.ProtocolFrame, Envelope: forwardEnv}); err != nil {
			l.log.Warnf("dolev: forward to %d failed: %v", n, err)
		}
	}

	if !entry.DolevDelivered && helper.DisjointPathsOK(entry.Paths, l.f+1) {
		entry.DolevDelivered = true
		l.deliver(env.WithPath(newPath))
	}
}

func contains(path []types.ProcessID, n types.ProcessID) bool {
	for _, p := range path {
		if p == n {
			return true
		}
	}
	return false
}

// fabricate replaces an outbound application message with a fake one,
// per the malicious-behaviour mode "fabricate": a configured malicious
// starter emits content of its own choosing instead of the
// application's, still tagged with a fresh message id.
func fabricate(env types.Envelope) types.Envelope {
	out := env.Clone()
	out.Content = []byte("fake news!")
	out.MsgID = helper.GenerateMsgID()
	return out
}

// tamper rewrites Content on an envelope a malicious process is about
// to forward, per the malicious-behaviour mode "tamper". MsgID is left
// unchanged.
func tamper(env types.Envelope) types.Envelope {
	out := env.Clone()
	out.Content = append([]byte("tampered: "), out.Content...)
	return out
}
