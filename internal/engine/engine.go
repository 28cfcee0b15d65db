// Package engine wires the deterministic execution kernel's subsystems
// (scheduler, capability gate, policy engine, tool sandbox, event log,
// snapshot builder) into the single-threaded-per-run orchestration loop
// section 5 describes: "the scheduler, event log appender, and
// replay engine for one run never execute in parallel against the same
// state." The top-level wiring (run lookup, step loop, completion
// bookkeeping) follows the same shape as any single-writer workflow
// engine, re-expressed over this kernel's own DAG/event/capability types.
package engine

import (
	"context"
	"sync"

	"github.com/cathedral-fabric/fabric/internal/capgate"
	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/policy"
	"github.com/cathedral-fabric/fabric/internal/retrypolicy"
	"github.com/cathedral-fabric/fabric/internal/sandbox"
	"github.com/cathedral-fabric/fabric/internal/scheduler"
	"github.com/cathedral-fabric/fabric/internal/telemetry"
	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tool binds a DAG node's declared tool name to the sandbox.Spec and
// execution body the engine dispatches it through. Node.Name is matched
// against the Tool's key in a Registry.
type Tool struct {
	Spec      sandbox.Spec
	HostCalls []sandbox.HostCall
	Exec      sandbox.ExecFunc
}

// Registry maps a DAG node's Name to the Tool that implements it.
type Registry map[string]Tool

// Config bundles the Run settings that New does not take as separate
// arguments: the scheduler tuning and the retry policy for transient
// tool failures.
type Config struct {
	Scheduler scheduler.Config
	Retry     retrypolicy.Policy
}

// Run is one in-flight (or completed) workflow execution: the kernel's
// central object binding a DAG, its event log, and every mediating
// subsystem together under one logical clock.
type Run struct {
	ID    core.RunID
	DAG   *core.DAG
	Tools Registry
	Retry retrypolicy.Policy

	Log   *eventlog.Log
	Clock *core.Clock

	sched   *scheduler.Scheduler
	gate    *capgate.Gate
	invoker *sandbox.Invoker

	mu       sync.Mutex
	attempts map[core.NodeID]retrypolicy.Attempts
	failed   map[core.NodeID]bool
}

// New starts a Run: appends RunCreated, whose prior_state_hash is the
// hash of an empty replay.State (the log's existing tip is not read),
// then RunStarted, and returns a
// Run ready for Drive. caps and compiledPolicy are frozen for the life
// of the run and never mutated afterward.
func New(runID core.RunID, dag *core.DAG, tools Registry, caps *core.CapabilitySet, compiledPolicy *policy.CompiledPolicy, log *eventlog.Log, cfg Config) (*Run, error) {
	clock := core.NewClock(0)
	gate := capgate.NewGate(caps)
	invoker := sandbox.NewInvoker(gate, compiledPolicy, log, clock)

	r := &Run{
		ID:       runID,
		DAG:      dag,
		Tools:    tools,
		Retry:    cfg.Retry,
		Log:      log,
		Clock:    clock,
		sched:    scheduler.New(dag, cfg.Scheduler, clock),
		gate:     gate,
		invoker:  invoker,
		attempts: make(map[core.NodeID]retrypolicy.Attempts),
		failed:   make(map[core.NodeID]bool),
	}

	created := eventlog.NewEvent(runID, core.NodeID{}, 0, core.EventRunCreated, runPayload(dag))
	if err := invoker.Append(created); err != nil {
		return nil, err
	}
	started := eventlog.NewEvent(runID, core.NodeID{}, 0, core.EventRunStarted, nil)
	if err := invoker.Append(started); err != nil {
		return nil, err
	}
	return r, nil
}

// AddWorker registers a worker with the run's scheduler.
func (r *Run) AddWorker(w *scheduler.WorkerState) { r.sched.AddWorker(w) }

// StateHash returns the run's current hash-chain tip.
func (r *Run) StateHash() core.Hash { return r.invoker.StateHash() }

// Drive runs the scheduler/dispatch loop to completion: repeatedly pop
// the next schedulable decision, dispatch it synchronously (section
// 5: tool execution may run on background threads, but its result only
// becomes observable by re-entering the run's serial apply point as a
// new event — Drive is that apply point), and mark nodes completed or
// failed until the ready queue is empty and nothing is outstanding, at
// which point it appends RunCompleted or RunFailed.
//
// For an empty DAG, EntryNodes() is empty, so the loop is a no-op and
// RunCompleted is emitted immediately after RunStarted (its
// boundary behavior). For a DAG with nodes but no eligible worker,
// NextDecision keeps returning (nil, nil); after more than
// len(DAG.Nodes)+1 such polls in a row Drive returns a CodeNoReadyTasks
// error rather than spinning.
func (r *Run) Drive(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.Run", trace.WithAttributes(
		attribute.String("fabric.run_id", r.ID.String()),
		attribute.Int("fabric.node_count", len(r.DAG.Nodes)),
	))
	defer span.End()

	if err := r.drive(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Run) drive(ctx context.Context) error {
	outstanding := len(r.DAG.Nodes)
	if outstanding == 0 {
		return r.complete(true)
	}

	stalled := 0
	for outstanding > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		decision, err := r.sched.NextDecision(ctx)
		if err != nil {
			return err
		}
		if decision == nil {
			if r.sched.ReadyLen() == 0 {
				break
			}
			stalled++
			if stalled > len(r.DAG.Nodes)+1 {
				return core.NewError(core.CodeNoReadyTasks, "scheduler stalled: no eligible worker for any ready node")
			}
			continue
		}
		stalled = 0

		ok, err := r.dispatch(ctx, decision)
		if err != nil {
			return err
		}
		if ok {
			outstanding--
		} else if r.terminallyFailed(decision.NodeID) {
			outstanding--
		}
	}
	return r.complete(!r.anyFailed())
}

func (r *Run) anyFailed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed) > 0
}

func (r *Run) terminallyFailed(id core.NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[id]
}

// dispatch runs one scheduled node end to end: TaskAssigned, NodeStarted,
// the mediated tool invocation, and NodeCompleted/NodeFailed. It returns
// (true, nil) on success, (false, nil) on a terminal (non-retried)
// failure, and a non-nil error only for a fatal run-level failure.
func (r *Run) dispatch(ctx context.Context, decision *scheduler.ScheduleDecision) (bool, error) {
	node, ok := r.DAG.NodeByID(decision.NodeID)
	if !ok {
		return false, core.NewError(core.CodeNotFound, "dispatch: unknown node "+decision.NodeID.String())
	}

	scheduled := eventlog.NewEvent(r.ID, node.ID, 0, core.EventNodeScheduled, taskPayload(decision))
	if err := r.invoker.Append(scheduled); err != nil {
		return false, err
	}

	assigned := eventlog.NewEvent(r.ID, node.ID, 0, core.EventTaskAssigned, taskPayload(decision))
	if err := r.invoker.Append(assigned); err != nil {
		return false, err
	}
	started := eventlog.NewEvent(r.ID, node.ID, 0, core.EventNodeStarted, nil)
	if err := r.invoker.Append(started); err != nil {
		return false, err
	}

	tool, ok := r.Tools[node.Name]
	if !ok {
		return r.failNode(node.ID, core.CodeInvalidInput, "no tool registered for node "+node.Name)
	}

	output, execErr := r.invoker.Invoke(ctx, tool.Spec, r.ID, node.ID, nil, tool.HostCalls, tool.Exec)
	if execErr != nil {
		return r.handleFailure(ctx, decision, node, tool, execErr)
	}

	completed := eventlog.NewEvent(r.ID, node.ID, 0, core.EventNodeCompleted, output.Bytes)
	if err := r.invoker.Append(completed); err != nil {
		return false, err
	}
	if w, ok := r.sched.Worker(decision.WorkerID); ok {
		w.MarkExecuted(node.ID)
	}
	if err := r.sched.MarkCompleted(node.ID, nil); err != nil {
		return false, err
	}
	return true, nil
}

// handleFailure applies the run's retry policy: retry, attempt by
// attempt, while the error's code stays in the policy's allowlist and
// attempts remain, each attempt logged as a fresh
// ToolInvoked/.../ToolCompleted-or-ToolFailed sequence, since each
// attempt is its own event; otherwise emit a terminal NodeFailed and
// skip dependents. Retries run back-to-back within this call rather
// than waiting out DelayFor in real time — the kernel has no wall clock
// to wait on — but NextEligible is still recorded for observability and
// for a future scheduler that defers re-dispatch until logical time
// catches up to it.
func (r *Run) handleFailure(ctx context.Context, decision *scheduler.ScheduleDecision, node core.Node, tool Tool, execErr error) (bool, error) {
	code := classifyError(execErr)

	for {
		r.mu.Lock()
		prior := r.attempts[node.ID]
		next, retry := r.Retry.RecordFailure(prior, code, r.Clock.Current())
		r.attempts[node.ID] = next
		r.mu.Unlock()

		if !retry {
			return r.failNode(node.ID, code, execErr.Error())
		}

		output, retryErr := r.invoker.Invoke(ctx, tool.Spec, r.ID, node.ID, nil, tool.HostCalls, tool.Exec)
		if retryErr == nil {
			completed := eventlog.NewEvent(r.ID, node.ID, 0, core.EventNodeCompleted, output.Bytes)
			if err := r.invoker.Append(completed); err != nil {
				return false, err
			}
			if err := r.sched.MarkCompleted(node.ID, nil); err != nil {
				return false, err
			}
			return true, nil
		}
		execErr = retryErr
		code = classifyError(execErr)
	}
}

func classifyError(err error) core.Code {
	if fabricErr, ok := err.(*core.Error); ok {
		return fabricErr.Code
	}
	return core.CodeHostFunctionError
}

func (r *Run) failNode(nodeID core.NodeID, code core.Code, message string) (bool, error) {
	failed := eventlog.NewEvent(r.ID, nodeID, 0, core.EventNodeFailed, nil)
	failed.WithError(code, message)
	if err := r.invoker.Append(failed); err != nil {
		return false, err
	}

	r.mu.Lock()
	r.failed[nodeID] = true
	r.mu.Unlock()

	for _, dep := range r.dependents(nodeID) {
		skipped := eventlog.NewEvent(r.ID, dep, 0, core.EventNodeSkipped, nil)
		if err := r.invoker.Append(skipped); err != nil {
			return false, err
		}
	}
	return false, nil
}

// dependents returns every node transitively reachable from nodeID via
// outgoing edges, in edge-list order, the set its
// cancellation rule ("dependent tasks are skipped with NodeSkipped")
// names.
func (r *Run) dependents(nodeID core.NodeID) []core.NodeID {
	var out []core.NodeID
	seen := map[core.NodeID]bool{nodeID: true}
	queue := []core.NodeID{nodeID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range r.DAG.OutEdges(cur) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			out = append(out, e.To)
			queue = append(queue, e.To)
		}
	}
	return out
}

func (r *Run) complete(success bool) error {
	kind := core.EventRunCompleted
	if !success {
		kind = core.EventRunFailed
	}
	ev := eventlog.NewEvent(r.ID, core.NodeID{}, 0, kind, nil)
	return r.invoker.Append(ev)
}

func runPayload(dag *core.DAG) []byte {
	w := codec.NewWriter()
	w.U32(uint32(len(dag.Nodes)))
	w.U32(uint32(len(dag.Edges)))
	return w.Finish()
}

func taskPayload(d *scheduler.ScheduleDecision) []byte {
	w := codec.NewWriter()
	w.ID16(d.TaskID.Bytes())
	w.ID16(d.WorkerID.Bytes())
	w.U64(uint64(d.AssignedAt))
	w.String(d.Reasoning)
	return w.Finish()
}
