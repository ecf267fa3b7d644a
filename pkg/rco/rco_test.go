package rco

import (
	"testing"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/definition"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

type fakeBroadcaster struct {
	sent []types.Envelope
}

func (f *fakeBroadcaster) Broadcast(env types.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

type capturedDelivery struct {
	author  types.ProcessID
	content string
}

// immediateSchedule runs scheduled follow-on broadcasts synchronously,
// matching a single-threaded event loop with no pending task queue
// latency, which is enough to observe the causal pipeline's shape.
func immediateSchedule(f func()) { f() }

func newTestLayer(self types.ProcessID, n int) (*Layer, *fakeBroadcaster, *[]capturedDelivery) {
	below := &fakeBroadcaster{}
	var delivered []capturedDelivery
	app := func(author types.ProcessID, content []byte) {
		delivered = append(delivered, capturedDelivery{author: author, content: string(content)})
	}
	l := New(self, n, below, definition.NewLogrusLogger(self), app, immediateSchedule)
	return l, below, &delivered
}

func TestBroadcastDeliversToSelfImmediatelyAndIncrementsOwnClock(t *testing.T) {
	l, below, delivered := newTestLayer(0, 3)

	if err := l.Broadcast([]byte("hello"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*delivered) != 1 || (*delivered)[0].content != "hello" {
		t.Fatalf("expected immediate self-delivery of the broadcast content, got %+v", *delivered)
	}
	if len(below.sent) != 1 {
		t.Fatalf("expected the envelope to be handed down to BRB exactly once, got %d", len(below.sent))
	}
	if got := l.VectorClock(); got[0] != 1 {
		t.Fatalf("expected VC[self] to increment to 1 after broadcast, got %v", got)
	}
	if below.sent[0].VectorClock[0] != 0 {
		t.Fatalf("the stamped envelope must carry the pre-increment clock, got %v", below.sent[0].VectorClock)
	}
}

func TestOnBRBDeliverBuffersUntilDominated(t *testing.T) {
	l, _, delivered := newTestLayer(2, 3)

	// A message from process 1 whose VC requires VC[0]>=1, which this
	// process has not yet observed, must be buffered rather than
	// delivered.
	blocked := types.Envelope{
		AuthorID:    1,
		Content:     []byte("blocked"),
		VectorClock: []uint64{1, 0, 0},
	}
	l.OnBRBDeliver(blocked)
	if len(*delivered) != 0 {
		t.Fatalf("expected no delivery while the causal dependency is unmet, got %+v", *delivered)
	}

	// Deliver a dependency-free message from process 0 first...
	satisfied := types.Envelope{
		AuthorID:    0,
		Content:     []byte("unblocking"),
		VectorClock: []uint64{0, 0, 0},
	}
	l.OnBRBDeliver(satisfied)
	if len(*delivered) != 2 {
		t.Fatalf("delivering the dependency must also flush the now-unblocked pending entry in the same pass, got %+v", *delivered)
	}
	if (*delivered)[0].content != "unblocking" || (*delivered)[1].content != "blocked" {
		t.Fatalf("expected causal delivery order [unblocking, blocked], got %+v", *delivered)
	}
}

func TestOnBRBDeliverSkipsOwnAuthoredMessages(t *testing.T) {
	l, _, delivered := newTestLayer(0, 3)

	own := types.Envelope{AuthorID: 0, Content: []byte("mine"), VectorClock: []uint64{0, 0, 0}}
	l.OnBRBDeliver(own)

	if len(*delivered) != 0 {
		t.Fatalf("a process must never buffer or re-deliver its own authored message via OnBRBDeliver, got %+v", *delivered)
	}
}

func TestCausalQueuePipelineSchedulesSuccessorBroadcast(t *testing.T) {
	l, below, delivered := newTestLayer(8, 10)

	// Process 8 is the head of the causal queue [8, 9, 6]; once a
	// message naming it at the head is delivered, it must schedule a
	// follow-on broadcast carrying the remaining tail [9, 6].
	env := types.Envelope{
		AuthorID:    7,
		Content:     []byte("trigger"),
		VectorClock: make([]uint64, 10),
		CausalQueue: []types.ProcessID{8, 9, 6},
	}
	l.OnBRBDeliver(env)

	// immediateSchedule runs the follow-on Broadcast synchronously, which
	// self-delivers its own content in addition to the triggering message.
	if len(*delivered) != 2 {
		t.Fatalf("expected the triggering delivery plus its scheduled follow-on self-delivery, got %d: %+v", len(*delivered), *delivered)
	}
	if (*delivered)[0].author != 7 || (*delivered)[1].author != 8 {
		t.Fatalf("expected delivery order [author 7, author 8], got %+v", *delivered)
	}
	if len(below.sent) != 1 {
		t.Fatalf("expected exactly 1 follow-on broadcast handed to BRB, got %d", len(below.sent))
	}
	if len(below.sent[0].CausalQueue) != 2 || below.sent[0].CausalQueue[0] != 9 || below.sent[0].CausalQueue[1] != 6 {
		t.Fatalf("expected the follow-on broadcast to carry the remaining tail [9 6], got %v", below.sent[0].CausalQueue)
	}
}

func TestCausalQueueNoopWhenHeadIsNotSelf(t *testing.T) {
	l, below, delivered := newTestLayer(5, 10)

	env := types.Envelope{
		AuthorID:    7,
		Content:     []byte("trigger"),
		VectorClock: make([]uint64, 10),
		CausalQueue: []types.ProcessID{8, 9, 6},
	}
	l.OnBRBDeliver(env)

	if len(*delivered) != 1 {
		t.Fatalf("expected the message itself to still be delivered, got %d", len(*delivered))
	}
	if len(below.sent) != 0 {
		t.Fatalf("a process not at the head of the causal queue must not schedule any follow-on broadcast, got %d", len(below.sent))
	}
}
