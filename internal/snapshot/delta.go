package snapshot

import "github.com/cathedral-fabric/fabric/pkg/core"

// Delta is the incremental form of a snapshot: changed node states,
// added/removed workers, and new blob references relative to a base
// snapshot.
type Delta struct {
	Base              core.SnapshotID
	LogicalTime       core.LogicalTime
	LogIndex          uint64
	CoordinatorState  *core.ContentAddress // nil if unchanged from base
	DAGState          *core.ContentAddress // nil if unchanged from base
	ChangedWorkers    []WorkerStateRef
	RemovedWorkers    []core.WorkerID
	NewBlobs          []core.ContentAddress
}

// ApplyTo reconstructs the full snapshot that Delta describes on top of
// base, then recomputes its content_hash.
func (d *Delta) ApplyTo(base *Snapshot) (*Snapshot, error) {
	if base.Metadata.SnapshotID != d.Base {
		return nil, core.NewError(core.CodeSnapshotCorrupted, "delta's base snapshot id does not match the supplied base")
	}

	out := &Snapshot{
		Metadata: Metadata{
			SnapshotID:      core.NewSnapshotID(),
			RunID:           base.Metadata.RunID,
			LogicalTime:     d.LogicalTime,
			PriorSnapshotID: &base.Metadata.SnapshotID,
			LogIndex:        d.LogIndex,
		},
		CoordinatorState: base.CoordinatorState,
		DAGState:         base.DAGState,
		Blobs:            append([]core.ContentAddress{}, base.Blobs...),
	}
	if d.CoordinatorState != nil {
		out.CoordinatorState = *d.CoordinatorState
	}
	if d.DAGState != nil {
		out.DAGState = *d.DAGState
	}
	out.Blobs = append(out.Blobs, d.NewBlobs...)

	removed := make(map[core.WorkerID]bool, len(d.RemovedWorkers))
	for _, id := range d.RemovedWorkers {
		removed[id] = true
	}
	changed := make(map[core.WorkerID]core.ContentAddress, len(d.ChangedWorkers))
	for _, ws := range d.ChangedWorkers {
		changed[ws.WorkerID] = ws.State
	}

	for _, ws := range base.WorkerStates {
		if removed[ws.WorkerID] {
			continue
		}
		if addr, ok := changed[ws.WorkerID]; ok {
			out.WorkerStates = append(out.WorkerStates, WorkerStateRef{WorkerID: ws.WorkerID, State: addr})
			delete(changed, ws.WorkerID)
			continue
		}
		out.WorkerStates = append(out.WorkerStates, ws)
	}
	// Remaining entries in changed are newly added workers.
	for id, addr := range changed {
		out.WorkerStates = append(out.WorkerStates, WorkerStateRef{WorkerID: id, State: addr})
	}

	out.Metadata.ContentHash = out.computeContentHash()
	return out, nil
}
