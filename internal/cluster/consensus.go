package cluster

import (
	"context"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// LogEntry is one committed entry of the cluster's consensus log: a
// scheduler decision or other run-affecting mutation, ordered by Index.
// Each decision is proposed as a consensus log entry and execution
// proceeds only after commit, so commit order is the run's total order.
// Data is the canonically-encoded payload the caller proposed; this
// package does not interpret it.
type LogEntry struct {
	Index uint64
	Term  uint64
	Data  []byte
}

// ConsensusProposer is the log-entry contract section 4.8 asks for,
// independent of the election/replication algorithm behind it: propose
// an entry, observe whether and where it committed. Implementations
// (Raft, Multi-Paxos, or this package's single-node stub) satisfy this
// interface without this package depending on any of them.
type ConsensusProposer interface {
	// Propose submits data for inclusion in the consensus log. It
	// returns the assigned index once the entry is durably proposed;
	// the caller must still wait for CommitIndex to reach that index
	// before treating the entry as committed. Returns core.CodeNotLeader
	// if this node is not currently the leader.
	Propose(ctx context.Context, data []byte) (index uint64, err error)

	// CommitIndex returns the highest index known to be committed.
	CommitIndex() uint64

	// Entries returns every committed entry with Index >= fromIndex, in
	// index order, for a non-leader to mirror into its local state (section 4.8: "Non-leaders replay committed decisions to keep
	// their local scheduler state consistent").
	Entries(fromIndex uint64) []LogEntry
}

// LeaderElector reports and manages leadership for the current node.
type LeaderElector interface {
	// IsLeader reports whether this node currently holds leadership.
	IsLeader() bool

	// Leader returns the current leader's worker id, if known.
	Leader() (core.WorkerID, bool)

	// StartElection begins (or re-triggers) leader election.
	StartElection(ctx context.Context) error
}
