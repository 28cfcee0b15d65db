package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/cathedral-fabric/fabric/internal/capgate"
	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/policy"
	"github.com/cathedral-fabric/fabric/internal/replay"
	"github.com/cathedral-fabric/fabric/internal/telemetry"
	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Spec describes one invocable tool: its schemas, the capabilities it
// requires, its resource bound, and the rule for normalizing its raw
// output, per section 4.7.
type Spec struct {
	Name                 string
	InputSchema          *Schema
	OutputSchema         *Schema
	RequiredCapabilities []capgate.Request
	Bound                core.ResourceBound
	NormalizeKind        Kind
	CustomNormalizer     CustomFunc
	Timeout              time.Duration
}

// ExecFunc runs the tool body against validated input, producing raw
// (pre-normalization) output bytes.
type ExecFunc func(ctx context.Context, vm *VM, input []byte) ([]byte, error)

// Invoker mediates every tool call through the pipeline of section
// 4.7: validate input, gate capabilities, decide policy, execute within
// bounds, validate output, normalize, and log every step. Grounded on
// internal/executor/executor.go's Execute loop structure (call →
// side-effect → record → repeat), specialized here to a single mediated
// call instead of a multi-turn agent loop.
type Invoker struct {
	gate   *capgate.Gate
	policy *policy.CompiledPolicy
	log    *eventlog.Log
	clock  *core.Clock

	mu    sync.Mutex
	state *replay.State
}

// NewInvoker returns an Invoker that gates against gate, decides against
// policy, and appends every step to log, drawing each event's
// logical_time from clock and its state hashes from a reconstructed
// replay.State the Invoker maintains as it goes — the same state replay
// rebuilds by walking the log back, so a freshly produced log and a
// replayed one agree on what post_state_hash means. clock must be the
// same Clock every other component appending to log uses, so the whole
// run advances through one strictly-increasing sequence.
func NewInvoker(gate *capgate.Gate, p *policy.CompiledPolicy, log *eventlog.Log, clock *core.Clock) *Invoker {
	return &Invoker{gate: gate, policy: p, log: log, clock: clock, state: replay.NewState()}
}

// Append chains and appends e using the Invoker's running reconstructed
// state, exported so a run's orchestrator can interleave its own
// lifecycle events (RunCreated, NodeScheduled, TaskAssigned, ...) into
// the exact same chain the tool-invocation pipeline writes to, rather
// than keeping a second, divergent chain position.
func (inv *Invoker) Append(e *eventlog.Event) error {
	return inv.appendChained(e)
}

// StateHash returns the Invoker's current reconstructed state hash, the
// same value the next appended event's prior_state_hash will carry.
func (inv *Invoker) StateHash() core.Hash {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state.Hash()
}

// appendChained assigns e's logical_time from the shared clock and its
// prior/post state hashes from the Invoker's running reconstructed
// state, then appends it, advancing the state only on success.
// post_state_hash is H(canonical_encode(State)) after folding e in —
// the exact function replay.State.Hash computes while walking the log
// back — rather than a fold over payload hashes: the two sides must
// agree on what "the state" is, or a correctly-produced log would fail
// its own replay.
func (inv *Invoker) appendChained(e *eventlog.Event) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	e.LogicalTime = inv.clock.Tick()

	prior := inv.state.Hash()
	next := inv.state.Clone()
	next.Apply(e)
	post := next.Hash()
	e.WithStateHashes(prior, post)

	if err := inv.log.Append(e); err != nil {
		return err
	}
	inv.state = next
	return nil
}

// Invoke mediates one call to spec, using hostCalls to build the VM the
// tool body executes against, and exec to run the tool body itself.
func (inv *Invoker) Invoke(ctx context.Context, spec Spec, runID core.RunID, nodeID core.NodeID, input []byte, hostCalls []HostCall, exec ExecFunc) (*Output, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "sandbox.Invoke", trace.WithAttributes(
		attribute.String("fabric.tool", spec.Name),
		attribute.String("fabric.run_id", runID.String()),
		attribute.String("fabric.node_id", nodeID.String()),
	))
	defer span.End()

	output, err := inv.invoke(ctx, spec, runID, nodeID, input, hostCalls, exec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return output, err
}

func (inv *Invoker) invoke(ctx context.Context, spec Spec, runID core.RunID, nodeID core.NodeID, input []byte, hostCalls []HostCall, exec ExecFunc) (*Output, error) {
	canonicalInput, err := Normalize(Json, input, nil)
	requestHash := core.ComputeHash(input)
	if err == nil {
		requestHash = canonicalInput.Hash
	}

	invoked := eventlog.NewEvent(runID, nodeID, 0, core.EventToolInvoked, toolInvokedPayload(spec.Name))
	invoked.WithToolHashes(requestHash, core.Hash{})
	if appendErr := inv.appendChained(invoked); appendErr != nil {
		return nil, appendErr
	}

	if err := spec.InputSchema.Validate(input); err != nil {
		return nil, inv.fail(runID, nodeID, requestHash, core.CodeInvalidInput, err.Error())
	}

	if err := inv.checkCapabilities(runID, nodeID, spec); err != nil {
		return nil, err
	}

	proof, err := inv.policy.Decide(policy.MatchContext{ToolName: spec.Name}, inv.clock.Current())
	if err != nil {
		return nil, inv.fail(runID, nodeID, requestHash, core.CodePolicyDenied, err.Error())
	}
	decisionEvent := eventlog.NewEvent(runID, nodeID, 0, core.EventPolicyDecision, proof.Encode())
	if appendErr := inv.appendChained(decisionEvent); appendErr != nil {
		return nil, appendErr
	}
	if !proof.Allowed {
		return nil, inv.fail(runID, nodeID, requestHash, core.CodePolicyDenied, "tool invocation denied by policy "+proof.PolicyID)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	meter := NewMeter(spec.Bound)
	vm := NewVM(inv.gate, meter, hostCalls, inv.capabilityObserver(runID, nodeID))

	raw, execErr := exec(runCtx, vm, input)
	if execErr != nil {
		code := classifyExecError(runCtx, execErr)
		return nil, inv.fail(runID, nodeID, requestHash, code, execErr.Error())
	}

	if err := spec.OutputSchema.Validate(raw); err != nil {
		return nil, inv.fail(runID, nodeID, requestHash, core.CodeInvalidInput, err.Error())
	}

	output, err := Normalize(spec.NormalizeKind, raw, spec.CustomNormalizer)
	if err != nil {
		return nil, inv.fail(runID, nodeID, requestHash, core.CodeInvalidInput, err.Error())
	}

	completed := eventlog.NewEvent(runID, nodeID, 0, core.EventToolCompleted, toolInvokedPayload(spec.Name))
	completed.WithToolHashes(requestHash, output.Hash)
	if appendErr := inv.appendChained(completed); appendErr != nil {
		return nil, appendErr
	}

	return &output, nil
}

// checkCapabilities gates and logs every required capability in order,
// per section 4.7 step 2 / section 4.6's event-before-proceed rule.
func (inv *Invoker) checkCapabilities(runID core.RunID, nodeID core.NodeID, spec Spec) error {
	for _, req := range spec.RequiredCapabilities {
		gateErr := inv.gate.Check(req)
		proof, decideErr := inv.policy.Decide(policy.MatchContext{ToolName: spec.Name, CapabilityKind: req.Kind}, inv.clock.Current())
		if decideErr != nil {
			return decideErr
		}
		allowed := gateErr == nil && proof.Allowed

		checkEvent := eventlog.NewEvent(runID, nodeID, 0, core.EventCapabilityCheck, capabilityCheckPayload(req))
		checkEvent.WithCapabilityCheck(allowed, proof.DecisionID)
		if appendErr := inv.appendChained(checkEvent); appendErr != nil {
			return appendErr
		}

		if !allowed {
			return core.NewError(core.CodeCapabilityDenied, "capability denied: "+req.Kind.String()).WithDecision(proof.DecisionID)
		}
	}
	return nil
}

// capabilityObserver adapts a VM's per-host-call capability outcome into
// a logged CapabilityCheck event, for capabilities checked lazily at
// host-call time rather than up front.
func (inv *Invoker) capabilityObserver(runID core.RunID, nodeID core.NodeID) HostCallObserver {
	return func(name string, req capgate.Request, allowed bool, callErr error) {
		decisionID := core.DecisionIDFromContext(name, capabilityCheckPayload(req))
		checkEvent := eventlog.NewEvent(runID, nodeID, 0, core.EventCapabilityCheck, capabilityCheckPayload(req))
		checkEvent.WithCapabilityCheck(allowed, decisionID)
		_ = inv.appendChained(checkEvent)
	}
}

func (inv *Invoker) fail(runID core.RunID, nodeID core.NodeID, requestHash core.Hash, code core.Code, message string) error {
	kind := core.EventToolFailed
	if code == core.CodeTimeout {
		kind = core.EventToolTimedOut
	}
	failed := eventlog.NewEvent(runID, nodeID, 0, kind, toolFailedPayload(code, message))
	failed.WithToolHashes(requestHash, core.Hash{})
	failed.WithError(code, message)
	_ = inv.appendChained(failed)
	return core.NewError(code, message)
}

func classifyExecError(ctx context.Context, execErr error) core.Code {
	if ctx.Err() == context.DeadlineExceeded {
		return core.CodeTimeout
	}
	if fabricErr, ok := execErr.(*core.Error); ok {
		return fabricErr.Code
	}
	return core.CodeHostFunctionError
}

func toolInvokedPayload(name string) []byte {
	w := codec.NewWriter()
	w.String(name)
	return w.Finish()
}

func toolFailedPayload(code core.Code, message string) []byte {
	w := codec.NewWriter()
	w.U32(code.Numeric())
	w.String(message)
	return w.Finish()
}

func capabilityCheckPayload(req capgate.Request) []byte {
	w := codec.NewWriter()
	w.U32(uint32(req.Kind))
	w.String(req.Domain)
	w.String(req.Path)
	w.String(req.Table)
	w.String(req.EnvVar)
	w.U64(req.Resource.Fuel)
	w.U64(req.Resource.MemBytes)
	w.U64(req.Resource.CPUMilli)
	return w.Finish()
}
