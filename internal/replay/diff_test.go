package replay

import (
	"testing"

	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

func mkEvent(runID core.RunID, nodeID core.NodeID, t core.LogicalTime, kind core.EventKind, payload []byte) *eventlog.Event {
	return eventlog.NewEvent(runID, nodeID, t, kind, payload)
}

func TestDiffIdenticalSequencesHasNoDivergence(t *testing.T) {
	runID, nodeID := core.NewRunID(), core.NewNodeID()
	events := []*eventlog.Event{
		mkEvent(runID, nodeID, 1, core.EventNodeStarted, nil),
		mkEvent(runID, nodeID, 2, core.EventNodeCompleted, []byte("x")),
	}

	result := Diff(events, events)
	if result.FirstDivergence != -1 {
		t.Errorf("FirstDivergence = %d, want -1 for identical sequences", result.FirstDivergence)
	}
	for _, e := range result.Entries {
		if e.Kind != EntryEqual {
			t.Errorf("entry at time %d = %v, want EntryEqual", e.Time, e.Kind)
		}
	}
}

func TestDiffDetectsChangedPayload(t *testing.T) {
	runID, nodeID := core.NewRunID(), core.NewNodeID()
	left := []*eventlog.Event{mkEvent(runID, nodeID, 1, core.EventNodeCompleted, []byte("a"))}
	right := []*eventlog.Event{mkEvent(runID, nodeID, 1, core.EventNodeCompleted, []byte("b"))}

	result := Diff(left, right)
	if result.FirstDivergence != 0 {
		t.Fatalf("FirstDivergence = %d, want 0", result.FirstDivergence)
	}
	if result.Entries[0].Kind != EntryChanged {
		t.Errorf("Entries[0].Kind = %v, want EntryChanged", result.Entries[0].Kind)
	}
}

func TestDiffDetectsMissingOnRightSide(t *testing.T) {
	runID, nodeID := core.NewRunID(), core.NewNodeID()
	left := []*eventlog.Event{
		mkEvent(runID, nodeID, 1, core.EventNodeStarted, nil),
		mkEvent(runID, nodeID, 2, core.EventNodeCompleted, nil),
	}
	right := []*eventlog.Event{
		mkEvent(runID, nodeID, 1, core.EventNodeStarted, nil),
	}

	result := Diff(left, right)
	if result.FirstDivergence != 1 {
		t.Fatalf("FirstDivergence = %d, want 1", result.FirstDivergence)
	}
	entry := result.Entries[1]
	if entry.Kind != EntryMissing || entry.Missing != SideRight {
		t.Errorf("Entries[1] = %+v, want EntryMissing/SideRight", entry)
	}
}

func TestDiffCausalAncestorsWalksToRunStarted(t *testing.T) {
	runID, nodeID := core.NewRunID(), core.NewNodeID()
	root := mkEvent(runID, nodeID, 1, core.EventRunStarted, nil)
	mid := mkEvent(runID, nodeID, 2, core.EventNodeStarted, nil).WithParent(root.EventID)
	leaf := mkEvent(runID, nodeID, 3, core.EventNodeCompleted, []byte("a")).WithParent(mid.EventID)

	leafRight := mkEvent(runID, nodeID, 3, core.EventNodeCompleted, []byte("b")).WithParent(mid.EventID)

	left := []*eventlog.Event{root, mid, leaf}
	right := []*eventlog.Event{root, mid, leafRight}

	result := Diff(left, right)
	if result.FirstDivergence != 2 {
		t.Fatalf("FirstDivergence = %d, want 2", result.FirstDivergence)
	}
	if len(result.CausalAncestors) != 3 {
		t.Fatalf("CausalAncestors = %v, want 3 entries", result.CausalAncestors)
	}
	if result.CausalAncestors[0] != root.EventID {
		t.Error("CausalAncestors should start at the root RunStarted event")
	}
	if result.CausalAncestors[len(result.CausalAncestors)-1] != leaf.EventID {
		t.Error("CausalAncestors should end at the diverging event")
	}
}

func TestDiffEmptyBothSides(t *testing.T) {
	result := Diff(nil, nil)
	if result.FirstDivergence != -1 || len(result.Entries) != 0 {
		t.Errorf("Diff(nil, nil) = %+v, want empty result", result)
	}
}
