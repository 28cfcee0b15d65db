// Package replay implements the deterministic replay and diff engines of
// section 4.9: reconstruct a run's state by walking its event log,
// verifying the hash chain and re-deriving state hashes as it goes, and
// compare two runs' event sequences to find their first divergence.
package replay

import (
	"sort"

	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// NodeRunState is a single node's reconstructed lifecycle within a
// replayed run.
type NodeRunState struct {
	NodeID      core.NodeID
	Status      core.NodeStatus
	Output      []byte
	Err         *string
	SideEffects []string
}

// ReplayError is a single failure observed during replay, attributed to the
// node and logical time it occurred at.
type ReplayError struct {
	NodeID  core.NodeID
	Code    core.Code
	Message string
	Time    core.LogicalTime
}

// State is the state reconstructed by walking a run's event log: each
// node's lifecycle plus the failures observed along the way. Every
// mutation is driven by an event's Kind through apply, so replaying the
// same event log twice from the same starting point always produces a
// byte-identical State.
type State struct {
	Time   core.LogicalTime
	Nodes  map[core.NodeID]*NodeRunState
	Errors []ReplayError
}

// NewState returns an empty reconstructed state at logical time zero.
func NewState() *State {
	return &State{Nodes: make(map[core.NodeID]*NodeRunState)}
}

// Clone returns a deep copy of s, used by a caller that wants to try
// applying an event and inspect the resulting Hash before committing it
// (e.g. the live engine, which must not advance its running state until
// the event carrying that state's hash has actually been appended).
func (s *State) Clone() *State {
	nodes := make(map[core.NodeID]*NodeRunState, len(s.Nodes))
	for id, ns := range s.Nodes {
		cp := *ns
		cp.SideEffects = append([]string(nil), ns.SideEffects...)
		nodes[id] = &cp
	}
	return &State{
		Time:   s.Time,
		Nodes:  nodes,
		Errors: append([]ReplayError(nil), s.Errors...),
	}
}

func (s *State) nodeState(id core.NodeID) *NodeRunState {
	ns, ok := s.Nodes[id]
	if !ok {
		ns = &NodeRunState{NodeID: id, Status: core.NodeStatusPending}
		s.Nodes[id] = ns
	}
	return ns
}

// Node returns the reconstructed state for id, if any event has touched
// it yet.
func (s *State) Node(id core.NodeID) (*NodeRunState, bool) {
	ns, ok := s.Nodes[id]
	return ns, ok
}

// HasErrors reports whether any event produced a failure.
func (s *State) HasErrors() bool { return len(s.Errors) > 0 }

// TotalNodes returns the number of distinct nodes observed.
func (s *State) TotalNodes() int { return len(s.Nodes) }

// CompletedCount returns the number of nodes whose status is Completed.
func (s *State) CompletedCount() int {
	n := 0
	for _, ns := range s.Nodes {
		if ns.Status == core.NodeStatusCompleted {
			n++
		}
	}
	return n
}

// Seed merges a starting snapshot's decoded DAG state into s, used when
// replay begins mid-log from a snapshot instead of from RunCreated.
func (s *State) Seed(statuses map[core.NodeID]core.NodeStatus) {
	for id, status := range statuses {
		s.nodeState(id).Status = status
	}
}

// Apply advances s by one event, per the event's Kind. Transitions are
// total: every EventKind either mutates s in exactly one way or is
// ignored, never branching on anything outside the event itself. Both
// replay and the live engine call this over the same event so that
// state_hash means the same thing on both sides: H(canonical_encode(State))
// after folding in this event.
func (s *State) Apply(e *eventlog.Event) {
	s.Time = e.LogicalTime
	switch e.Kind {
	case core.EventNodeScheduled:
		s.nodeState(e.NodeID).Status = core.NodeStatusScheduled
	case core.EventNodeStarted:
		s.nodeState(e.NodeID).Status = core.NodeStatusRunning
	case core.EventNodeCompleted:
		ns := s.nodeState(e.NodeID)
		ns.Status = core.NodeStatusCompleted
		ns.Output = e.Payload
	case core.EventNodeFailed:
		ns := s.nodeState(e.NodeID)
		ns.Status = core.NodeStatusFailed
		s.recordError(e)
	case core.EventNodeSkipped:
		s.nodeState(e.NodeID).Status = core.NodeStatusSkipped
	case core.EventToolCompleted:
		ns := s.nodeState(e.NodeID)
		ns.SideEffects = append(ns.SideEffects, "tool_completed")
	case core.EventToolFailed, core.EventToolTimedOut, core.EventRunFailed:
		s.recordError(e)
	case core.EventCapabilityCheck:
		if e.CapabilityCheck != nil && !e.CapabilityCheck.Allowed {
			s.Errors = append(s.Errors, ReplayError{
				NodeID: e.NodeID, Code: core.CodeCapabilityDenied,
				Message: "capability denied", Time: e.LogicalTime,
			})
		}
	}
}

func (s *State) recordError(e *eventlog.Event) {
	if e.Err == nil {
		return
	}
	msg := e.Err.Message
	if ns, ok := s.Nodes[e.NodeID]; ok {
		ns.Err = &msg
	}
	s.Errors = append(s.Errors, ReplayError{NodeID: e.NodeID, Code: e.Err.Code, Message: msg, Time: e.LogicalTime})
}

// sortedNodeIDs returns an ascending-byte-order copy of ids, the order
// every canonical encoding over a node set uses to stay deterministic.
func sortedNodeIDs(ids []core.NodeID) []core.NodeID {
	out := append([]core.NodeID(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Bytes(), out[j].Bytes()
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out
}

// digest canonically encodes s. Error message texts (NodeRunState.Err,
// ReplayError.Message) are not encoded; every other field apply mutates is.
// Hash is its BLAKE3 digest, the value replay compares against each
// event's recorded post_state_hash.
func (s *State) digest() []byte {
	ids := make([]core.NodeID, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	ids = sortedNodeIDs(ids)

	w := codec.NewWriter()
	w.U64(uint64(s.Time))
	w.U32(uint32(len(ids)))
	for _, id := range ids {
		ns := s.Nodes[id]
		w.ID16(id.Bytes())
		w.U32(uint32(ns.Status))
		w.Bytes(ns.Output)
		w.U32(uint32(len(ns.SideEffects)))
		for _, se := range ns.SideEffects {
			w.String(se)
		}
	}
	w.U32(uint32(len(s.Errors)))
	for _, err := range s.Errors {
		w.ID16(err.NodeID.Bytes())
		w.String(string(err.Code))
		w.U64(uint64(err.Time))
	}
	return w.Finish()
}

// Hash returns the content hash of s, used both to re-derive an event's
// post_state_hash during replay and, by the engine that produces the
// log in the first place, to stamp that hash onto each event as it is
// appended.
func (s *State) Hash() core.Hash { return core.ComputeHash(s.digest()) }
