package snapshot

import (
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func TestDAGStateRoundTrip(t *testing.T) {
	statuses := map[core.NodeID]core.NodeStatus{
		core.NewNodeID(): core.NodeStatusCompleted,
		core.NewNodeID(): core.NodeStatusFailed,
		core.NewNodeID(): core.NodeStatusPending,
	}

	decoded, err := DecodeDAGState(EncodeDAGState(statuses))
	if err != nil {
		t.Fatalf("DecodeDAGState() error = %v", err)
	}
	if len(decoded) != len(statuses) {
		t.Fatalf("len(decoded) = %d, want %d", len(decoded), len(statuses))
	}
	for id, status := range statuses {
		if decoded[id] != status {
			t.Errorf("decoded[%v] = %v, want %v", id, decoded[id], status)
		}
	}
}

func TestDAGStateEncodeIsDeterministic(t *testing.T) {
	statuses := map[core.NodeID]core.NodeStatus{
		core.NewNodeID(): core.NodeStatusRunning,
		core.NewNodeID(): core.NodeStatusSkipped,
	}
	a := EncodeDAGState(statuses)
	b := EncodeDAGState(statuses)
	if string(a) != string(b) {
		t.Error("EncodeDAGState() should be deterministic for the same map")
	}
}

func TestDAGStateEmptyRoundTrip(t *testing.T) {
	decoded, err := DecodeDAGState(EncodeDAGState(nil))
	if err != nil {
		t.Fatalf("DecodeDAGState() error = %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("len(decoded) = %d, want 0", len(decoded))
	}
}
