package cluster

import (
	"context"
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func TestSingleNodeProposeCommitsImmediately(t *testing.T) {
	self := core.NewWorkerID()
	n := NewSingleNode(self)

	index, err := n.Propose(context.Background(), []byte("decision-1"))
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if index != 1 {
		t.Errorf("index = %d, want 1", index)
	}
	if n.CommitIndex() != 1 {
		t.Errorf("CommitIndex() = %d, want 1", n.CommitIndex())
	}

	entries := n.Entries(1)
	if len(entries) != 1 || string(entries[0].Data) != "decision-1" {
		t.Errorf("Entries(1) = %+v", entries)
	}
}

func TestSingleNodeIsAlwaysLeader(t *testing.T) {
	self := core.NewWorkerID()
	n := NewSingleNode(self)
	if !n.IsLeader() {
		t.Error("IsLeader() should always be true for a single node")
	}
	leader, ok := n.Leader()
	if !ok || leader != self {
		t.Errorf("Leader() = (%v, %v), want (%v, true)", leader, ok, self)
	}
}

func TestSingleNodeEntriesFiltersByIndex(t *testing.T) {
	n := NewSingleNode(core.NewWorkerID())
	for i := 0; i < 3; i++ {
		if _, err := n.Propose(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("Propose() error = %v", err)
		}
	}
	entries := n.Entries(2)
	if len(entries) != 2 || entries[0].Index != 2 || entries[1].Index != 3 {
		t.Errorf("Entries(2) = %+v, want indices [2,3]", entries)
	}
}
