// Package cluster implements the liveness state machine and the
// leader/consensus log-entry contract section 5 describes for
// cluster mode. The consensus algorithm and RPC transport themselves are
// out of scope (section 1: "external collaborators, specified only
// by the interface the core consumes/produces"); this package specifies
// the interfaces and ships a single-node in-memory implementation
// sufficient for a non-clustered engine.
package cluster

import (
	"sync"
	"time"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// MemberState is a cluster member's liveness state under a
// two-threshold failure detector: absence beyond a configured timeout
// moves a member to Suspect, and after a second threshold, to Down.
type MemberState uint32

const (
	MemberJoining MemberState = iota
	MemberActive
	MemberSuspect
	MemberDown
	MemberLeft
)

func (s MemberState) String() string {
	switch s {
	case MemberJoining:
		return "Joining"
	case MemberActive:
		return "Active"
	case MemberSuspect:
		return "Suspect"
	case MemberDown:
		return "Down"
	case MemberLeft:
		return "Left"
	default:
		return "Unknown"
	}
}

// Member is one cluster participant: an engine/worker process tracked by
// liveness heartbeats.
type Member struct {
	WorkerID      core.WorkerID
	State         MemberState
	Address       string
	LastHeartbeat time.Time
}

// Membership tracks the liveness of every known cluster member. Safe for
// concurrent use: heartbeats arrive on a background liveness channel
// while CheckLiveness and the scheduler's re-proposal logic read
// concurrently (section 5 "shared resources" discipline).
type Membership struct {
	mu             sync.RWMutex
	self           core.WorkerID
	members        map[core.WorkerID]*Member
	suspectTimeout time.Duration
	downTimeout    time.Duration
}

// NewMembership returns a tracker for self's view of the cluster.
// suspectTimeout is the first heartbeat-absence threshold (Active →
// Suspect); downTimeout is the second, measured from the same last
// heartbeat (Suspect → Down).
func NewMembership(self core.WorkerID, suspectTimeout, downTimeout time.Duration) *Membership {
	return &Membership{
		self:           self,
		members:        make(map[core.WorkerID]*Member),
		suspectTimeout: suspectTimeout,
		downTimeout:    downTimeout,
	}
}

// AddMember registers a member, replacing any existing entry for the
// same worker id.
func (m *Membership) AddMember(member Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := member
	m.members[member.WorkerID] = &cp
}

// RemoveMember deregisters a member, reporting whether it was present.
func (m *Membership) RemoveMember(id core.WorkerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[id]; !ok {
		return false
	}
	delete(m.members, id)
	return true
}

// Member returns the tracked state of a single member.
func (m *Membership) Member(id core.WorkerID) (Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.members[id]
	if !ok {
		return Member{}, false
	}
	return *member, ok
}

// Members returns every tracked member.
func (m *Membership) Members() []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Member, 0, len(m.members))
	for _, member := range m.members {
		out = append(out, *member)
	}
	return out
}

// ActiveMembers returns every member currently in MemberActive state.
func (m *Membership) ActiveMembers() []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Member
	for _, member := range m.members {
		if member.State == MemberActive {
			out = append(out, *member)
		}
	}
	return out
}

// UpdateHeartbeat records a heartbeat at `at` for id, reviving a Suspect
// member back to Active (it has not yet crossed the Down threshold, so a
// late-but-present heartbeat recovers it). Reports whether id was known.
func (m *Membership) UpdateHeartbeat(id core.WorkerID, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return false
	}
	member.LastHeartbeat = at
	if member.State == MemberSuspect {
		member.State = MemberActive
	}
	return true
}

// CheckLiveness advances every non-self, non-terminal member's state
// against `now`: Active members silent past suspectTimeout move to
// Suspect; Suspect members silent past downTimeout move to Down. Returns
// the worker ids that newly transitioned to each state this call, so the
// caller can re-propose tasks assigned to newly-Down workers (section 5).
func (m *Membership) CheckLiveness(now time.Time) (newlySuspect, newlyDown []core.WorkerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, member := range m.members {
		if id == m.self || member.State == MemberLeft {
			continue
		}
		elapsed := now.Sub(member.LastHeartbeat)
		switch member.State {
		case MemberActive:
			if elapsed > m.suspectTimeout {
				member.State = MemberSuspect
				newlySuspect = append(newlySuspect, id)
			}
		case MemberSuspect:
			if elapsed > m.downTimeout {
				member.State = MemberDown
				newlyDown = append(newlyDown, id)
			}
		}
	}
	return newlySuspect, newlyDown
}

// HasQuorum reports whether the number of Active members meets
// quorumSize.
func (m *Membership) HasQuorum(quorumSize int) bool {
	return len(m.ActiveMembers()) >= quorumSize
}
