package dolev

import (
	"testing"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/definition"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/state"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

type fakeSender struct {
	sent []sentMsg
	fail map[types.ProcessID]bool
}

type sentMsg struct {
	peer types.ProcessID
	env  types.Envelope
}

func (f *fakeSender) Send(peer types.ProcessID, msg types.WireMessage) error {
	if f.fail[peer] {
		return errSend
	}
	f.sent = append(f.sent, sentMsg{peer: peer, env: msg.Envelope})
	return nil
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

const errSend = stubErr("send failed")

func newTestLayer(self types.ProcessID, peers []types.ProcessID, f int, mal Malicious) (*Layer, *fakeSender, *[]types.Envelope) {
	sender := &fakeSender{fail: map[types.ProcessID]bool{}}
	var delivered []types.Envelope
	l := New(self, peers, f, state.NewTable(), sender, definition.NewLogrusLogger(self), mal, func(env types.Envelope) {
		delivered = append(delivered, env)
	})
	return l, sender, &delivered
}

func TestBroadcastFloodsAllPeersAndSelfDeliversImmediately(t *testing.T) {
	l, sender, delivered := newTestLayer(0, []types.ProcessID{1, 2, 3}, 1, Malicious{Mode: types.MaliciousOff})

	env := types.Envelope{Content: []byte("hi"), MsgID: "m1", AuthorID: 0}
	if err := l.Broadcast(env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(sender.sent))
	}
	if len(*delivered) != 1 {
		t.Fatalf("expected the source to self-deliver immediately, got %d deliveries", len(*delivered))
	}
}

func TestReceiveForwardsAndDedupsPaths(t *testing.T) {
	l, sender, delivered := newTestLayer(3, []types.ProcessID{0, 1, 2}, 1, Malicious{Mode: types.MaliciousOff})

	env := types.Envelope{Content: []byte("hi"), MsgID: "m1", AuthorID: 0, Path: nil}
	l.Receive(0, env)

	if len(sender.sent) != 2 {
		t.Fatalf("expected forward to the 2 peers other than the sender, got %d", len(sender.sent))
	}
	for _, s := range sender.sent {
		if s.peer == 0 {
			t.Fatalf("must not forward back to the sender")
		}
	}
	if len(*delivered) != 0 {
		t.Fatalf("f=1 needs 2 disjoint paths, should not have delivered yet, got %d", len(*delivered))
	}

	// Receiving the exact same path again must be a no-op for delivery.
	sender.sent = nil
	l.Receive(0, env)
	if len(*delivered) != 0 {
		t.Fatalf("duplicate path must not trigger delivery")
	}
}

func TestReceiveDeliversOnceDisjointQuorumReached(t *testing.T) {
	l, _, delivered := newTestLayer(3, []types.ProcessID{0, 1, 2}, 1, Malicious{Mode: types.MaliciousOff})

	env := types.Envelope{Content: []byte("hi"), MsgID: "m1", AuthorID: 0, Path: []types.ProcessID{0}}
	l.Receive(1, env) // path becomes [0,1]

	env2 := types.Envelope{Content: []byte("hi"), MsgID: "m1", AuthorID: 0, Path: []types.ProcessID{0}}
	l.Receive(2, env2) // path becomes [0,2], disjoint from [0,1]

	if len(*delivered) != 1 {
		t.Fatalf("expected exactly 1 delivery once f+1=2 disjoint paths observed, got %d", len(*delivered))
	}

	// A third, redundant path must not trigger a second delivery.
	env3 := types.Envelope{Content: []byte("hi"), MsgID: "m1", AuthorID: 0, Path: []types.ProcessID{0, 1}}
	l.Receive(2, env3)
	if len(*delivered) != 1 {
		t.Fatalf("DolevRC delivery must fire at most once, got %d", len(*delivered))
	}
}

func TestMaliciousFabricateReplacesContent(t *testing.T) {
	l, sender, _ := newTestLayer(0, []types.ProcessID{1, 2}, 1, Malicious{Mode: types.MaliciousFabricate, FanoutCap: 1})

	env := types.Envelope{Content: []byte("real"), MsgID: "real-id", AuthorID: 0}
	if err := l.Broadcast(env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("malicious fan-out must be capped at f=1, got %d sends", len(sender.sent))
	}
	if string(sender.sent[0].env.Content) == "real" {
		t.Fatalf("expected fabricated content, got the real payload")
	}
}

func TestMaliciousTamperRewritesForwardedContent(t *testing.T) {
	// FanoutCap=2 caps targets to [0,1]; peer 0 is then skipped anyway
	// since it is the node this envelope was just received from, so
	// exactly one forward (to peer 1) goes out, instead of the two
	// (to 1 and 2) an honest process would send.
	l, sender, _ := newTestLayer(3, []types.ProcessID{0, 1, 2}, 1, Malicious{Mode: types.MaliciousTamper, FanoutCap: 2})

	env := types.Envelope{Content: []byte("original"), MsgID: "m1", AuthorID: 0}
	l.Receive(0, env)

	if len(sender.sent) != 1 {
		t.Fatalf("malicious fan-out cap should limit forwarding to 1, got %d", len(sender.sent))
	}
	if string(sender.sent[0].env.Content) == "original" {
		t.Fatalf("expected tampered content on forward")
	}
}
