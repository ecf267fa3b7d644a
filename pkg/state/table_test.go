package state

import (
	"testing"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

func TestGetOrCreateIsLazyAndStable(t *testing.T) {
	tbl := NewTable()
	key := types.MessageKey{Author: 0, MsgID: "m1"}

	if tbl.Len() != 0 {
		t.Fatalf("expected empty table, got %d entries", tbl.Len())
	}

	e1 := tbl.GetOrCreate(key)
	e1.SentEcho = true

	e2 := tbl.GetOrCreate(key)
	if e2 != e1 {
		t.Fatalf("expected the same entry pointer on second GetOrCreate")
	}
	if !e2.SentEcho {
		t.Fatalf("expected mutation through e1 to be visible through e2")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", tbl.Len())
	}
}

func TestInsertPathIsIdempotent(t *testing.T) {
	e := newEntry()
	p := []types.ProcessID{0, 1, 2}

	if !e.InsertPath(p) {
		t.Fatalf("expected first insert to report new")
	}
	if e.InsertPath(append([]types.ProcessID(nil), p...)) {
		t.Fatalf("expected duplicate path insert to report not-new")
	}
	if len(e.Paths) != 1 {
		t.Fatalf("expected 1 distinct path, got %d", len(e.Paths))
	}
}
