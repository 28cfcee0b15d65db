package scheduler

import "github.com/cathedral-fabric/fabric/pkg/core"

// WorkerStatus is a worker's availability for new task assignment.
type WorkerStatus uint32

const (
	WorkerIdle WorkerStatus = iota
	WorkerBusy
	WorkerDraining
	WorkerUnreachable
)

func (s WorkerStatus) String() string {
	switch s {
	case WorkerIdle:
		return "Idle"
	case WorkerBusy:
		return "Busy"
	case WorkerDraining:
		return "Draining"
	case WorkerUnreachable:
		return "Unreachable"
	default:
		return "Unknown"
	}
}

// acceptsWork reports whether the scheduler may consider a worker in this
// status a candidate, per section 4.8 step 2: only Idle or Busy workers
// are eligible; Draining and Unreachable are not.
func (s WorkerStatus) acceptsWork() bool {
	return s == WorkerIdle || s == WorkerBusy
}

// WorkerState is the scheduler's view of one worker: its resource
// envelope, granted capability kinds, current load, and liveness.
type WorkerState struct {
	ID           core.WorkerID
	Resources    core.ResourceBound
	Capabilities []core.CapabilityKind
	QueueDepth   int
	Status       WorkerStatus
	Zone         string

	// executed tracks the node ids this worker has run to completion,
	// consulted by the Affinity strategy to prefer a worker that already
	// ran a sibling fanout task.
	executed map[core.NodeID]bool
}

// NewWorkerState returns an idle worker with an empty execution history.
func NewWorkerState(id core.WorkerID, resources core.ResourceBound, capabilities []core.CapabilityKind) *WorkerState {
	return &WorkerState{
		ID:           id,
		Resources:    resources,
		Capabilities: capabilities,
		Status:       WorkerIdle,
		executed:     make(map[core.NodeID]bool),
	}
}

// hasCapabilities reports whether w's granted capability kinds are a
// superset of required.
func (w *WorkerState) hasCapabilities(required []core.CapabilityKind) bool {
	for _, need := range required {
		found := false
		for _, have := range w.Capabilities {
			if have == need {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// satisfiesResources reports whether w's resource envelope covers the
// node's resource contract.
func (w *WorkerState) satisfiesResources(requested core.ResourceBound) bool {
	return requested.Fuel <= w.Resources.Fuel &&
		requested.MemBytes <= w.Resources.MemBytes &&
		requested.CPUMilli <= w.Resources.CPUMilli
}

// hasExecuted reports whether w previously ran id to completion.
func (w *WorkerState) hasExecuted(id core.NodeID) bool {
	return w.executed[id]
}

// MarkExecuted records that w ran id to completion, for future Affinity
// decisions.
func (w *WorkerState) MarkExecuted(id core.NodeID) {
	w.executed[id] = true
}
