// Package core holds the identifier, hash, capability, and error types
// shared by every CATHEDRAL.FABRIC component.
package core

import (
	"fmt"

	"github.com/google/uuid"
)

// RunID identifies a single workflow execution.
type RunID struct{ uuid.UUID }

// EventID identifies a single event in a run's log.
type EventID struct{ uuid.UUID }

// NodeID identifies a DAG node.
type NodeID struct{ uuid.UUID }

// WorkerID identifies a worker that can accept tasks.
type WorkerID struct{ uuid.UUID }

// TaskID identifies a scheduler-assigned unit of work.
type TaskID struct{ uuid.UUID }

// SnapshotID identifies a materialized state snapshot.
type SnapshotID struct{ uuid.UUID }

// DecisionID identifies a policy decision proof.
type DecisionID struct{ uuid.UUID }

// ClusterID identifies a cluster of cooperating engine processes.
type ClusterID struct{ uuid.UUID }

// NewRunID returns a new random RunID.
func NewRunID() RunID { return RunID{uuid.New()} }

// NewEventID returns a new random EventID.
func NewEventID() EventID { return EventID{uuid.New()} }

// NewNodeID returns a new random NodeID.
func NewNodeID() NodeID { return NodeID{uuid.New()} }

// NodeIDFromName derives a stable NodeID from a node name, mirroring the
// reference implementation's UUIDv5-over-DNS-namespace derivation so that
// re-compiling the same DAG source always assigns the same node ids.
func NodeIDFromName(name string) NodeID {
	return NodeID{uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name))}
}

// NewWorkerID returns a new random WorkerID.
func NewWorkerID() WorkerID { return WorkerID{uuid.New()} }

// NewTaskID returns a new random TaskID.
func NewTaskID() TaskID { return TaskID{uuid.New()} }

// NewSnapshotID returns a new random SnapshotID.
func NewSnapshotID() SnapshotID { return SnapshotID{uuid.New()} }

// NewClusterID returns a new random ClusterID.
func NewClusterID() ClusterID { return ClusterID{uuid.New()} }

// TaskIDFromDecision derives a TaskID deterministically from the node
// being scheduled and the logical time it was assigned at. run_id is
// deliberately excluded: two independent executions of the same DAG get
// fresh random run_ids but must still produce a byte-identical decision
// sequence (P5), so task_id can only depend on state that is itself
// reproduced identically across those executions.
func TaskIDFromDecision(nodeID NodeID, assignedAt LogicalTime) TaskID {
	buf := make([]byte, 0, 16+8)
	b := nodeID.Bytes()
	buf = append(buf, b[:]...)
	buf = append(buf,
		byte(assignedAt>>56), byte(assignedAt>>48), byte(assignedAt>>40), byte(assignedAt>>32),
		byte(assignedAt>>24), byte(assignedAt>>16), byte(assignedAt>>8), byte(assignedAt))
	return TaskID{uuid.NewSHA1(uuid.NameSpaceOID, buf)}
}

// DecisionIDFromContext derives a DecisionID deterministically from the
// canonical encoding of a policy id and match context, so that two
// evaluations of decide(P,x) produce byte-identical decision_ids (P6).
func DecisionIDFromContext(policyID string, canonicalContext []byte) DecisionID {
	buf := make([]byte, 0, len(policyID)+1+len(canonicalContext))
	buf = append(buf, []byte(policyID)...)
	buf = append(buf, 0x00)
	buf = append(buf, canonicalContext...)
	return DecisionID{uuid.NewSHA1(uuid.NameSpaceOID, buf)}
}

func (id RunID) String() string      { return fmt.Sprintf("run_%s", id.UUID) }
func (id EventID) String() string    { return fmt.Sprintf("evt_%s", id.UUID) }
func (id NodeID) String() string     { return fmt.Sprintf("node_%s", id.UUID) }
func (id WorkerID) String() string   { return fmt.Sprintf("worker_%s", id.UUID) }
func (id TaskID) String() string     { return fmt.Sprintf("task_%s", id.UUID) }
func (id SnapshotID) String() string { return fmt.Sprintf("snap_%s", id.UUID) }
func (id DecisionID) String() string { return fmt.Sprintf("dec_%s", id.UUID) }
func (id ClusterID) String() string  { return fmt.Sprintf("cluster_%s", id.UUID) }

// Bytes returns the 16-byte little-endian-free raw UUID representation
// used by the canonical codec.
func (id RunID) Bytes() [16]byte      { return id.UUID }
func (id EventID) Bytes() [16]byte    { return id.UUID }
func (id NodeID) Bytes() [16]byte     { return id.UUID }
func (id WorkerID) Bytes() [16]byte   { return id.UUID }
func (id TaskID) Bytes() [16]byte     { return id.UUID }
func (id SnapshotID) Bytes() [16]byte { return id.UUID }
func (id DecisionID) Bytes() [16]byte { return id.UUID }
func (id ClusterID) Bytes() [16]byte  { return id.UUID }

// RunIDFromBytes reconstructs a RunID from raw bytes (e.g. decoded off disk).
func RunIDFromBytes(b [16]byte) RunID { return RunID{uuid.UUID(b)} }

// EventIDFromBytes reconstructs an EventID from raw bytes.
func EventIDFromBytes(b [16]byte) EventID { return EventID{uuid.UUID(b)} }

// NodeIDFromBytes reconstructs a NodeID from raw bytes.
func NodeIDFromBytes(b [16]byte) NodeID { return NodeID{uuid.UUID(b)} }

// WorkerIDFromBytes reconstructs a WorkerID from raw bytes.
func WorkerIDFromBytes(b [16]byte) WorkerID { return WorkerID{uuid.UUID(b)} }

// TaskIDFromBytes reconstructs a TaskID from raw bytes.
func TaskIDFromBytes(b [16]byte) TaskID { return TaskID{uuid.UUID(b)} }

// SnapshotIDFromBytes reconstructs a SnapshotID from raw bytes.
func SnapshotIDFromBytes(b [16]byte) SnapshotID { return SnapshotID{uuid.UUID(b)} }

// DecisionIDFromBytes reconstructs a DecisionID from raw bytes.
func DecisionIDFromBytes(b [16]byte) DecisionID { return DecisionID{uuid.UUID(b)} }
