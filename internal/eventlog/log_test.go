package eventlog

import (
	"path/filepath"
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func appendChained(t *testing.T, l *Log, n int) []*Event {
	t.Helper()
	runID := core.NewRunID()
	nodeID := core.NewNodeID()
	events := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		var prior core.Hash
		if tip := l.Tip(); tip != nil {
			prior = *tip
		} else {
			prior = core.EmptyHash
		}
		e := NewEvent(runID, nodeID, core.LogicalTime(i+1), core.EventHeartbeat, []byte{byte(i)})
		post := core.ComputeHash([]byte{byte(i), byte(i), byte(i)})
		e.WithStateHashes(prior, post)
		if err := l.Append(e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		events = append(events, e)
	}
	return events
}

func TestLogAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cath-log")
	l, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer l.Close()

	want := appendChained(t, l, 4)
	if l.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", l.Len())
	}

	for i, w := range want {
		got, err := l.At(i)
		if err != nil {
			t.Fatalf("At(%d) error = %v", i, err)
		}
		if got.EventID != w.EventID {
			t.Errorf("At(%d).EventID = %v, want %v", i, got.EventID, w.EventID)
		}
	}
}

func TestLogAppendRejectsBrokenChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cath-log")
	l, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer l.Close()

	appendChained(t, l, 1)

	bad := NewEvent(core.NewRunID(), core.NewNodeID(), core.LogicalTime(2), core.EventHeartbeat, []byte("x"))
	wrongPrior := core.ComputeHash([]byte("wrong"))
	bad.WithStateHashes(wrongPrior, core.ComputeHash([]byte("y")))

	if err := l.Append(bad); err == nil {
		t.Fatal("Append() should reject an event with a stale prior_state_hash")
	}
}

func TestLogReopenReplaysChainState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cath-log")
	l, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	want := appendChained(t, l, 3)
	tip := *l.Tip()
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 3 {
		t.Fatalf("Len() after reopen = %d, want 3", reopened.Len())
	}
	if got := reopened.Tip(); got == nil || *got != tip {
		t.Fatalf("Tip() after reopen = %v, want %v", got, tip)
	}

	got, pos, err := reopened.Seek(want[1].EventID)
	if err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if pos != 1 || got.EventID != want[1].EventID {
		t.Fatalf("Seek() returned position %d event %v, want 1 %v", pos, got.EventID, want[1].EventID)
	}
}

func TestLogCursorStreamsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cath-log")
	l, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer l.Close()

	want := appendChained(t, l, 3)
	c := l.NewCursor()
	for i := 0; i < 3; i++ {
		e, ok, err := c.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !ok {
			t.Fatalf("Next() ran out early at i=%d", i)
		}
		if e.EventID != want[i].EventID {
			t.Errorf("Next() at %d = %v, want %v", i, e.EventID, want[i].EventID)
		}
	}
	if _, ok, err := c.Next(); err != nil || ok {
		t.Fatalf("Next() past end = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestLogCursorFromResumesAfterCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cath-log")
	l, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer l.Close()

	want := appendChained(t, l, 4)
	c, err := l.CursorFrom(want[1].EventID)
	if err != nil {
		t.Fatalf("CursorFrom() error = %v", err)
	}

	e, ok, err := c.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = (_, %v, %v)", ok, err)
	}
	if e.EventID != want[2].EventID {
		t.Fatalf("Next() after CursorFrom = %v, want %v", e.EventID, want[2].EventID)
	}
}
