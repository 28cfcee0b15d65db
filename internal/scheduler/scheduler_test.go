package scheduler

import (
	"context"
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func linearDAG() (*core.DAG, core.NodeID, core.NodeID, core.NodeID) {
	a, b, c := core.NodeIDFromName("A"), core.NodeIDFromName("B"), core.NodeIDFromName("C")
	dag := &core.DAG{
		Nodes: []core.Node{
			{ID: a, Name: "A", RequiredCapabilities: []core.CapabilityKind{core.CapabilityNetRead}},
			{ID: b, Name: "B", RequiredCapabilities: []core.CapabilityKind{core.CapabilityNetRead}},
			{ID: c, Name: "C", RequiredCapabilities: []core.CapabilityKind{core.CapabilityNetRead}},
		},
		Edges: []core.Edge{{From: a, To: b}, {From: b, To: c}},
	}
	return dag, a, b, c
}

func fanoutDAG() (*core.DAG, core.NodeID, core.NodeID, core.NodeID, core.NodeID) {
	a, b, c, d := core.NodeIDFromName("A"), core.NodeIDFromName("B"), core.NodeIDFromName("C"), core.NodeIDFromName("D")
	dag := &core.DAG{
		Nodes: []core.Node{
			{ID: a, Name: "A"},
			{ID: b, Name: "B"},
			{ID: c, Name: "C"},
			{ID: d, Name: "D"},
		},
		Edges: []core.Edge{
			{From: a, To: b},
			{From: a, To: c},
			{From: b, To: d},
			{From: c, To: d},
		},
	}
	return dag, a, b, c, d
}

func TestNewSeedsReadyQueueFromEntryNodes(t *testing.T) {
	dag, a, _, _ := linearDAG()
	s := New(dag, Config{}, core.NewClock(0))
	if s.ReadyLen() != 1 {
		t.Fatalf("ReadyLen() = %d, want 1", s.ReadyLen())
	}
	decision, err := s.NextDecision(context.Background())
	if err != nil {
		t.Fatalf("NextDecision() error = %v", err)
	}
	if decision != nil {
		t.Fatalf("NextDecision() = %+v, want nil (no workers registered)", decision)
	}
	_ = a
}

func TestNextDecisionReturnsNilOnEmptyReadyQueue(t *testing.T) {
	dag := &core.DAG{}
	s := New(dag, Config{}, core.NewClock(0))
	decision, err := s.NextDecision(context.Background())
	if err != nil || decision != nil {
		t.Fatalf("NextDecision() = (%+v, %v), want (nil, nil)", decision, err)
	}
}

func TestNextDecisionRequeuesOnNoEligibleWorker(t *testing.T) {
	dag, a, _, _ := linearDAG()
	s := New(dag, Config{}, core.NewClock(0))
	s.AddWorker(NewWorkerState(core.NewWorkerID(), core.ResourceBound{}, []core.CapabilityKind{core.CapabilityDbRead}))

	decision, err := s.NextDecision(context.Background())
	if err != nil {
		t.Fatalf("NextDecision() error = %v", err)
	}
	if decision != nil {
		t.Fatalf("NextDecision() = %+v, want nil when no worker has the required capability", decision)
	}
	if s.ReadyLen() != 1 {
		t.Fatalf("ReadyLen() = %d, want 1 (node re-enqueued to avoid starvation)", s.ReadyLen())
	}
	if s.ready[0] != a {
		t.Errorf("ready[0] = %v, want %v", s.ready[0], a)
	}
}

func TestMarkCompletedPropagatesLinearReadiness(t *testing.T) {
	dag, a, b, c := linearDAG()
	s := New(dag, Config{}, core.NewClock(0))
	w := NewWorkerState(core.NewWorkerID(), core.ResourceBound{Fuel: 1000}, []core.CapabilityKind{core.CapabilityNetRead})
	s.AddWorker(w)

	decision, err := s.NextDecision(context.Background())
	if err != nil || decision == nil {
		t.Fatalf("NextDecision() = (%+v, %v), want a decision for A", decision, err)
	}
	if decision.NodeID != a {
		t.Fatalf("NodeID = %v, want A", decision.NodeID)
	}
	if err := s.MarkCompleted(a, nil); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if s.ReadyLen() != 1 || s.ready[0] != b {
		t.Fatalf("ready = %v, want [B]", s.ready)
	}

	decision, err = s.NextDecision(context.Background())
	if err != nil || decision == nil || decision.NodeID != b {
		t.Fatalf("NextDecision() = (%+v, %v), want a decision for B", decision, err)
	}
	if err := s.MarkCompleted(b, nil); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if s.ready[0] != c {
		t.Fatalf("ready = %v, want [C]", s.ready)
	}
}

func TestMarkCompletedOnlyReadiesNodeWhenAllPredecessorsDone(t *testing.T) {
	dag, a, b, c, d := fanoutDAG()
	s := New(dag, Config{}, core.NewClock(0))

	if err := s.MarkCompleted(a, nil); err != nil {
		t.Fatalf("MarkCompleted(A) error = %v", err)
	}
	if s.ReadyLen() != 2 {
		t.Fatalf("ReadyLen() = %d, want 2 (B and C both ready after A)", s.ReadyLen())
	}
	if err := s.MarkCompleted(b, nil); err != nil {
		t.Fatalf("MarkCompleted(B) error = %v", err)
	}
	if s.inReadyQueue(d) {
		t.Fatal("D should not be ready until both B and C are completed")
	}
	if err := s.MarkCompleted(c, nil); err != nil {
		t.Fatalf("MarkCompleted(C) error = %v", err)
	}
	if !s.inReadyQueue(d) {
		t.Fatal("D should be ready once both B and C are completed")
	}
}

func TestEligibleCandidatesExcludesInsufficientResources(t *testing.T) {
	dag, a, _, _ := linearDAG()
	_ = a
	dag.Nodes[0].Resources = core.ResourceBound{Fuel: 10_000}
	s := New(dag, Config{}, core.NewClock(0))
	s.AddWorker(NewWorkerState(core.NewWorkerID(), core.ResourceBound{Fuel: 100}, []core.CapabilityKind{core.CapabilityNetRead}))

	decision, err := s.NextDecision(context.Background())
	if err != nil {
		t.Fatalf("NextDecision() error = %v", err)
	}
	if decision != nil {
		t.Fatalf("NextDecision() = %+v, want nil (worker's fuel bound too low)", decision)
	}
}

func TestEligibleCandidatesExcludesDrainingAndAtCapacity(t *testing.T) {
	dag, _, _, _ := linearDAG()
	s := New(dag, Config{MaxQueuePerWorker: 1}, core.NewClock(0))

	draining := NewWorkerState(core.NewWorkerID(), core.ResourceBound{Fuel: 1000}, []core.CapabilityKind{core.CapabilityNetRead})
	draining.Status = WorkerDraining
	s.AddWorker(draining)

	full := NewWorkerState(core.NewWorkerID(), core.ResourceBound{Fuel: 1000}, []core.CapabilityKind{core.CapabilityNetRead})
	full.QueueDepth = 1
	s.AddWorker(full)

	decision, err := s.NextDecision(context.Background())
	if err != nil {
		t.Fatalf("NextDecision() error = %v", err)
	}
	if decision != nil {
		t.Fatalf("NextDecision() = %+v, want nil (both workers ineligible)", decision)
	}
}
