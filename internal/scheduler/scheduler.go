// Package scheduler implements the deterministic DAG scheduler of section 4.8: given a compiled DAG and a worker pool, it selects the
// next (node, worker) pair to run, one decision at a time, such that two
// instances fed the same inputs in the same order produce byte-identical
// decision sequences (P5).
package scheduler

import (
	"context"

	"github.com/cathedral-fabric/fabric/internal/telemetry"
	"github.com/cathedral-fabric/fabric/pkg/core"
	"go.opentelemetry.io/otel/attribute"
)

// ScheduleDecision is a single next_decision() outcome: the task created
// to run node_id on worker_id, plus the reasoning that led to this
// worker among the eligible candidates.
type ScheduleDecision struct {
	TaskID     core.TaskID
	NodeID     core.NodeID
	WorkerID   core.WorkerID
	AssignedAt core.LogicalTime
	Reasoning  string
}

// DefaultMaxQueuePerWorker is the MaxQueuePerWorker New uses when Config
// leaves it zero: how many tasks a worker may have outstanding before
// the scheduler excludes it from candidacy, per section 4.8 step 2.
const DefaultMaxQueuePerWorker = 8

// Config tunes the scheduler's eligibility and selection rules.
type Config struct {
	Strategy          Strategy
	MaxQueuePerWorker int
}

// Scheduler holds the mutable state section 4.8 describes: the
// worker pool, the ready queue (seeded from the DAG's entry nodes), the
// completed set, and a sequence counter derived from len(completed).
// It is logically single-threaded per run: next_decision, mark_completed,
// and the worker-pool mutators are never called concurrently against the
// same instance (section 5).
type Scheduler struct {
	dag     *core.DAG
	config  Config
	workers map[core.WorkerID]*WorkerState
	ready   []core.NodeID
	done    map[core.NodeID]bool
	clock   *core.Clock

	conditions *conditionCache
	outputs    map[core.NodeID]map[string]any
}

// New builds a Scheduler for dag, seeding the ready queue from its entry
// nodes, using clock as the run's shared logical-time source (see
// internal/sandbox, which shares the same clock across a run's event
// log).
func New(dag *core.DAG, config Config, clock *core.Clock) *Scheduler {
	if config.MaxQueuePerWorker <= 0 {
		config.MaxQueuePerWorker = DefaultMaxQueuePerWorker
	}
	entries := dag.EntryNodes()
	ready := make([]core.NodeID, len(entries))
	copy(ready, entries)
	return &Scheduler{
		dag:        dag,
		config:     config,
		workers:    make(map[core.WorkerID]*WorkerState),
		ready:      ready,
		done:       make(map[core.NodeID]bool),
		clock:      clock,
		conditions: newConditionCache(),
		outputs:    make(map[core.NodeID]map[string]any),
	}
}

// AddWorker registers w as available for scheduling.
func (s *Scheduler) AddWorker(w *WorkerState) {
	s.workers[w.ID] = w
}

// RemoveWorker deregisters a worker; in-flight tasks on it are the
// caller's concern, re-proposed once the caller observes the worker
// removal.
func (s *Scheduler) RemoveWorker(id core.WorkerID) {
	delete(s.workers, id)
}

// Worker returns the current state of a registered worker.
func (s *Scheduler) Worker(id core.WorkerID) (*WorkerState, bool) {
	w, ok := s.workers[id]
	return w, ok
}

// CompletedCount returns the scheduler's sequence counter: the number of
// nodes marked completed so far.
func (s *Scheduler) CompletedCount() uint64 {
	return uint64(len(s.done))
}

// ReadyLen reports the current ready-queue depth, for backpressure and
// diagnostics.
func (s *Scheduler) ReadyLen() int {
	return len(s.ready)
}

// MarkCompleted records node_id as completed, drops it from the ready
// queue if it is still queued, and recomputes the newly-ready set: for each outgoing edge from node_id whose Condition
// (if any) matches output, if every predecessor of the edge's target is
// already completed, the target is enqueued. Newly ready nodes are
// appended in the DAG's edge-list order, which is canonical (section 4.8).
func (s *Scheduler) MarkCompleted(nodeID core.NodeID, output map[string]any) error {
	s.done[nodeID] = true
	s.outputs[nodeID] = output
	for i, n := range s.ready {
		if n == nodeID {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			break
		}
	}

	for _, edge := range s.dag.OutEdges(nodeID) {
		matched, err := s.conditions.evaluate(edge, output)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		if s.allPredecessorsDone(edge.To) && !s.done[edge.To] && !s.inReadyQueue(edge.To) {
			s.ready = append(s.ready, edge.To)
		}
	}
	return nil
}

func (s *Scheduler) allPredecessorsDone(id core.NodeID) bool {
	for _, p := range s.dag.Predecessors(id) {
		if !s.done[p] {
			return false
		}
	}
	return true
}

func (s *Scheduler) inReadyQueue(id core.NodeID) bool {
	for _, n := range s.ready {
		if n == id {
			return true
		}
	}
	return false
}

// NextDecision implements the scheduler's next_decision algorithm:
// pop the ready queue's front, filter workers to eligible candidates, and
// select one per the configured balance strategy. Returns (nil, nil) —
// analogous to an absent decision — when the queue is empty or no
// worker is currently eligible for the front node; in the latter case
// the node is re-enqueued at the back to avoid starving it.
func (s *Scheduler) NextDecision(ctx context.Context) (*ScheduleDecision, error) {
	_, span := telemetry.Tracer().Start(ctx, "scheduler.NextDecision")
	defer span.End()

	if len(s.ready) == 0 {
		return nil, nil
	}
	nodeID := s.ready[0]
	s.ready = s.ready[1:]

	node, ok := s.dag.NodeByID(nodeID)
	if !ok {
		return nil, core.NewError(core.CodeNotFound, "scheduler: unknown node "+nodeID.String())
	}

	candidates := s.eligibleCandidates(node)
	if len(candidates) == 0 {
		s.ready = append(s.ready, nodeID)
		return nil, nil
	}
	sortCandidates(candidates)

	chosen, reasoning := pick(s.config.Strategy, s.dag, nodeID, s.CompletedCount(), candidates)
	chosen.QueueDepth++

	assignedAt := s.clock.Current()
	span.SetAttributes(
		attribute.String("fabric.node_id", nodeID.String()),
		attribute.String("fabric.worker_id", chosen.ID.String()),
	)
	return &ScheduleDecision{
		TaskID:     core.TaskIDFromDecision(nodeID, assignedAt),
		NodeID:     nodeID,
		WorkerID:   chosen.ID,
		AssignedAt: assignedAt,
		Reasoning:  reasoning,
	}, nil
}

// eligibleCandidates filters the worker pool per section 4.8 step 2:
// Idle|Busy status, queue_depth below the configured max, sufficient
// resources, and every required capability granted.
func (s *Scheduler) eligibleCandidates(node core.Node) []*WorkerState {
	var candidates []*WorkerState
	for _, w := range s.workers {
		if !w.Status.acceptsWork() {
			continue
		}
		if w.QueueDepth >= s.config.MaxQueuePerWorker {
			continue
		}
		if !w.satisfiesResources(node.Resources) {
			continue
		}
		if !w.hasCapabilities(node.RequiredCapabilities) {
			continue
		}
		candidates = append(candidates, w)
	}
	return candidates
}
