package scheduler

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Strategy selects one worker among equally-eligible candidates, per
// section 4.8 step 4.
type Strategy uint32

const (
	RoundRobin Strategy = iota
	LeastLoaded
	Affinity
	Random
)

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "RoundRobin"
	case LeastLoaded:
		return "LeastLoaded"
	case Affinity:
		return "Affinity"
	case Random:
		return "Random"
	default:
		return "Unknown"
	}
}

// sortCandidates orders candidates by worker_id ascending, the fixed
// tie-break order every strategy starts from.
func sortCandidates(candidates []*WorkerState) {
	sort.Slice(candidates, func(i, j int) bool {
		return lessWorkerID(candidates[i].ID, candidates[j].ID)
	})
}

func lessWorkerID(a, b core.WorkerID) bool {
	ab, bb := a.Bytes(), b.Bytes()
	for i := range ab {
		if ab[i] != bb[i] {
			return ab[i] < bb[i]
		}
	}
	return false
}

// pick selects one candidate per strategy and returns it with a short
// human-readable reasoning string for the decision's audit trail.
// candidates must already be sorted by worker_id ascending and
// non-empty.
func pick(strategy Strategy, dag *core.DAG, nodeID core.NodeID, completedCount uint64, candidates []*WorkerState) (*WorkerState, string) {
	switch strategy {
	case LeastLoaded:
		return pickLeastLoaded(candidates)
	case Affinity:
		return pickAffinity(dag, nodeID, candidates)
	case Random:
		return pickRandom(nodeID, candidates)
	default:
		return pickRoundRobin(completedCount, candidates)
	}
}

func pickRoundRobin(completedCount uint64, candidates []*WorkerState) (*WorkerState, string) {
	idx := completedCount % uint64(len(candidates))
	return candidates[idx], fmt.Sprintf("round_robin:index=%d", idx)
}

func pickLeastLoaded(candidates []*WorkerState) (*WorkerState, string) {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.QueueDepth < best.QueueDepth {
			best = c
		}
	}
	return best, fmt.Sprintf("least_loaded:queue_depth=%d", best.QueueDepth)
}

func pickAffinity(dag *core.DAG, nodeID core.NodeID, candidates []*WorkerState) (*WorkerState, string) {
	node, _ := dag.NodeByID(nodeID)
	siblings := dag.Siblings(nodeID)

	var executedSiblings []*WorkerState
	for _, c := range candidates {
		for _, sib := range siblings {
			if c.hasExecuted(sib) {
				executedSiblings = append(executedSiblings, c)
				break
			}
		}
	}
	if len(executedSiblings) > 0 {
		best, _ := pickLeastLoaded(executedSiblings)
		return best, "affinity:executed_sibling"
	}

	var sameZone []*WorkerState
	if node.Zone != "" {
		for _, c := range candidates {
			if c.Zone == node.Zone {
				sameZone = append(sameZone, c)
			}
		}
	}
	if len(sameZone) > 0 {
		best, _ := pickLeastLoaded(sameZone)
		return best, "affinity:same_zone"
	}

	best, _ := pickLeastLoaded(candidates)
	return best, "affinity:least_loaded_fallback"
}

// pickRandom derives a deterministic index from a hash of node_id xored
// with the candidate count, per section 4.8 step 4's "Random" rule:
// no entropy source, just a fixed function of inputs already present in
// the decision.
func pickRandom(nodeID core.NodeID, candidates []*WorkerState) (*WorkerState, string) {
	idBytes := nodeID.Bytes()
	count := uint64(len(candidates))
	var mixed [16]byte
	for i := range idBytes {
		mixed[i] = idBytes[i] ^ byte(count>>(8*uint(i%8)))
	}
	h := core.ComputeHash(mixed[:])
	idx := binary.BigEndian.Uint64(h[:8]) % count
	return candidates[idx], fmt.Sprintf("random:index=%d", idx)
}
