package snapshot

import "github.com/cathedral-fabric/fabric/pkg/core"

// Builder composes a Snapshot's coordinator, worker, and DAG state
// references before computing its content hash, mirroring the fluent
// SnapshotBuilder of cathedral_storage::snapshot.
type Builder struct {
	snap Snapshot
}

// NewBuilder starts a snapshot for runID at logicalTime, aligned with the
// event log position logIndex.
func NewBuilder(runID core.RunID, logicalTime core.LogicalTime, logIndex uint64) *Builder {
	return &Builder{snap: Snapshot{
		Metadata: Metadata{
			SnapshotID:  core.NewSnapshotID(),
			RunID:       runID,
			LogicalTime: logicalTime,
			LogIndex:    logIndex,
		},
	}}
}

// Prior sets the snapshot this one extends.
func (b *Builder) Prior(id core.SnapshotID) *Builder {
	b.snap.Metadata.PriorSnapshotID = &id
	return b
}

// CoordinatorState sets the content address of the serialized
// coordinator state.
func (b *Builder) CoordinatorState(addr core.ContentAddress) *Builder {
	b.snap.CoordinatorState = addr
	return b
}

// DAGState sets the content address of the serialized DAG node state.
func (b *Builder) DAGState(addr core.ContentAddress) *Builder {
	b.snap.DAGState = addr
	return b
}

// Worker adds or replaces a single worker's serialized state.
func (b *Builder) Worker(id core.WorkerID, addr core.ContentAddress) *Builder {
	for i, ws := range b.snap.WorkerStates {
		if ws.WorkerID == id {
			b.snap.WorkerStates[i].State = addr
			return b
		}
	}
	b.snap.WorkerStates = append(b.snap.WorkerStates, WorkerStateRef{WorkerID: id, State: addr})
	return b
}

// Blob adds an additional content-addressed blob referenced by the
// snapshot (e.g. tool outputs live at the snapshot's logical time).
func (b *Builder) Blob(addr core.ContentAddress) *Builder {
	b.snap.Blobs = append(b.snap.Blobs, addr)
	return b
}

// Build finalizes the snapshot, computing its content_hash over the
// canonical encoding of everything set above.
func (b *Builder) Build() *Snapshot {
	b.snap.Metadata.ContentHash = b.snap.computeContentHash()
	out := b.snap
	return &out
}
