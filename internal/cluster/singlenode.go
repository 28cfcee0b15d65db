package cluster

import (
	"context"
	"sync"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// SingleNode is the trivial ConsensusProposer/LeaderElector
// implementation for a non-clustered engine: there is exactly one node,
// it is always leader, and every proposal commits immediately since
// there are no peers to replicate to or wait on. This satisfies the
// log-entry contract section 4.8 specifies without implementing
// any election or replication algorithm.
type SingleNode struct {
	self core.WorkerID

	mu  sync.Mutex
	log []LogEntry
}

// NewSingleNode returns a SingleNode that always considers self the
// leader.
func NewSingleNode(self core.WorkerID) *SingleNode {
	return &SingleNode{self: self}
}

// Propose appends data to the local log and returns its index; the entry
// is committed before Propose returns, since a single node has no
// quorum to wait for.
func (s *SingleNode) Propose(ctx context.Context, data []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index := uint64(len(s.log)) + 1
	s.log = append(s.log, LogEntry{Index: index, Term: 1, Data: data})
	return index, nil
}

// CommitIndex returns the length of the local log: every proposed entry
// is committed immediately.
func (s *SingleNode) CommitIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.log))
}

// Entries returns committed entries at or after fromIndex.
func (s *SingleNode) Entries(fromIndex uint64) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LogEntry
	for _, e := range s.log {
		if e.Index >= fromIndex {
			out = append(out, e)
		}
	}
	return out
}

// IsLeader always reports true: a single node is trivially its own
// leader.
func (s *SingleNode) IsLeader() bool { return true }

// Leader always returns self.
func (s *SingleNode) Leader() (core.WorkerID, bool) { return s.self, true }

// StartElection is a no-op: there is no one to elect against.
func (s *SingleNode) StartElection(ctx context.Context) error { return ctx.Err() }

var (
	_ ConsensusProposer = (*SingleNode)(nil)
	_ LeaderElector     = (*SingleNode)(nil)
)
