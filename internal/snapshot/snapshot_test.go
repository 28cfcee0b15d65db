package snapshot

import (
	"context"
	"testing"

	"github.com/cathedral-fabric/fabric/internal/contentstore"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

func buildBasicSnapshot(t *testing.T, runID core.RunID) *Snapshot {
	t.Helper()
	coord := core.AddressFromData([]byte("coordinator state"))
	dag := core.AddressFromData([]byte("dag state"))
	worker := core.AddressFromData([]byte("worker state"))

	return NewBuilder(runID, core.LogicalTime(10), 3).
		CoordinatorState(coord).
		DAGState(dag).
		Worker(core.NewWorkerID(), worker).
		Build()
}

func TestSnapshotVerifyAcceptsUntamperedSnapshot(t *testing.T) {
	s := buildBasicSnapshot(t, core.NewRunID())
	if err := s.Verify(); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestSnapshotVerifyRejectsTamperedHash(t *testing.T) {
	s := buildBasicSnapshot(t, core.NewRunID())
	s.Metadata.ContentHash = core.ComputeHash([]byte("not the real body"))
	if err := s.Verify(); err == nil {
		t.Fatal("Verify() should reject a tampered content_hash")
	}
}

func TestSnapshotEncodeDecodeRoundTrip(t *testing.T) {
	s := buildBasicSnapshot(t, core.NewRunID())
	decoded, err := Decode(s.Encode())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Metadata.SnapshotID != s.Metadata.SnapshotID {
		t.Errorf("SnapshotID did not round-trip")
	}
	if decoded.Metadata.ContentHash != s.Metadata.ContentHash {
		t.Errorf("ContentHash did not round-trip")
	}
	if len(decoded.WorkerStates) != len(s.WorkerStates) {
		t.Errorf("WorkerStates count = %d, want %d", len(decoded.WorkerStates), len(s.WorkerStates))
	}
	if err := decoded.Verify(); err != nil {
		t.Errorf("decoded snapshot failed Verify(): %v", err)
	}
}

func TestSnapshotValidateChain(t *testing.T) {
	base := buildBasicSnapshot(t, core.NewRunID())
	child := NewBuilder(base.Metadata.RunID, core.LogicalTime(20), 7).
		Prior(base.Metadata.SnapshotID).
		CoordinatorState(base.CoordinatorState).
		DAGState(base.DAGState).
		Build()

	if err := child.ValidateChain(base); err != nil {
		t.Fatalf("ValidateChain() error = %v", err)
	}

	wrongBase := buildBasicSnapshot(t, base.Metadata.RunID)
	if err := child.ValidateChain(wrongBase); err == nil {
		t.Fatal("ValidateChain() should reject a mismatched prior snapshot")
	}
}

func TestSnapshotVerifyBlobsExist(t *testing.T) {
	ctx := context.Background()
	store := contentstore.NewMemoryStore()

	coordData := []byte("coordinator state")
	dagData := []byte("dag state")
	coordAddr, err := store.Put(ctx, coordData)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	dagAddr, err := store.Put(ctx, dagData)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	s := NewBuilder(core.NewRunID(), core.LogicalTime(1), 0).
		CoordinatorState(coordAddr).
		DAGState(dagAddr).
		Build()

	if err := s.VerifyBlobsExist(ctx, store); err != nil {
		t.Fatalf("VerifyBlobsExist() error = %v", err)
	}
}

func TestSnapshotVerifyBlobsExistDetectsMissing(t *testing.T) {
	ctx := context.Background()
	store := contentstore.NewMemoryStore()

	s := buildBasicSnapshot(t, core.NewRunID()) // references addresses never Put into store

	if err := s.VerifyBlobsExist(ctx, store); err == nil {
		t.Fatal("VerifyBlobsExist() should detect missing blobs")
	}
}

func TestSnapshotValidateLogIndexAlignment(t *testing.T) {
	s := buildBasicSnapshot(t, core.NewRunID())
	exists := func(idx uint64) bool { return idx == s.Metadata.LogIndex }
	if err := s.ValidateLogIndex(exists); err != nil {
		t.Fatalf("ValidateLogIndex() error = %v", err)
	}

	neverExists := func(idx uint64) bool { return false }
	if err := s.ValidateLogIndex(neverExists); err == nil {
		t.Fatal("ValidateLogIndex() should reject a misaligned log_index")
	}
}

func TestDeltaApplyToReconstructsFullSnapshot(t *testing.T) {
	base := buildBasicSnapshot(t, core.NewRunID())
	newWorker := core.NewWorkerID()
	newWorkerAddr := core.AddressFromData([]byte("new worker state"))
	newBlob := core.AddressFromData([]byte("a tool output"))

	d := &Delta{
		Base:           base.Metadata.SnapshotID,
		LogicalTime:    core.LogicalTime(11),
		LogIndex:       4,
		ChangedWorkers: []WorkerStateRef{{WorkerID: newWorker, State: newWorkerAddr}},
		NewBlobs:       []core.ContentAddress{newBlob},
	}

	full, err := d.ApplyTo(base)
	if err != nil {
		t.Fatalf("ApplyTo() error = %v", err)
	}
	if err := full.Verify(); err != nil {
		t.Fatalf("reconstructed snapshot failed Verify(): %v", err)
	}
	if full.Metadata.PriorSnapshotID == nil || *full.Metadata.PriorSnapshotID != base.Metadata.SnapshotID {
		t.Errorf("reconstructed snapshot should chain from base")
	}
	if len(full.WorkerStates) != len(base.WorkerStates)+1 {
		t.Errorf("WorkerStates count = %d, want %d", len(full.WorkerStates), len(base.WorkerStates)+1)
	}
	if len(full.Blobs) != 1 {
		t.Errorf("Blobs count = %d, want 1", len(full.Blobs))
	}
}

func TestDeltaApplyToRejectsMismatchedBase(t *testing.T) {
	base := buildBasicSnapshot(t, core.NewRunID())
	d := &Delta{Base: core.NewSnapshotID(), LogicalTime: core.LogicalTime(5)}
	if _, err := d.ApplyTo(base); err == nil {
		t.Fatal("ApplyTo() should reject a delta whose base id doesn't match")
	}
}
