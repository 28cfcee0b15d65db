package sandbox

import (
	"context"

	"github.com/cathedral-fabric/fabric/internal/capgate"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// HostCall is one invocation of a named host ABI function. The function
// body (Exec) never runs until the derived capability request passes the
// gate, so a host function can never observe a side effect it was not
// explicitly granted: no ambient authority exists in this sandbox.
type HostCall struct {
	Name string
	// Capability derives the concrete capability request (which domain,
	// path, table, env var, or resource bound) from the call's
	// arguments. A host call with no side effect (e.g. a pure
	// computation) can return a zero Request with Kind left at its
	// default only if the VM is constructed with no capability gate.
	Capability func(args []byte) capgate.Request
	Exec       func(ctx context.Context, args []byte) ([]byte, error)
}

// HostCallObserver is notified of every host call's outcome, the hook a
// tool sandbox pipeline uses to log a CapabilityCheck event per section 4.7 step 7.
type HostCallObserver func(name string, req capgate.Request, allowed bool, callErr error)

// VM executes one tool invocation's host calls within a fuel and memory
// bound, gating every call against the run's capability set. It has no
// ambient access to the network, filesystem, or clock beyond what a
// HostCall grants.
type VM struct {
	gate     *capgate.Gate
	meter    *Meter
	calls    map[string]HostCall
	observer HostCallObserver
}

// NewVM returns a VM bounded by meter and gated by gate, dispatching to
// the given named host calls.
func NewVM(gate *capgate.Gate, meter *Meter, calls []HostCall, observer HostCallObserver) *VM {
	m := make(map[string]HostCall, len(calls))
	for _, c := range calls {
		m[c.Name] = c
	}
	return &VM{gate: gate, meter: meter, calls: m, observer: observer}
}

// Call dispatches a named host function with args, charging
// HostCallFuelCost fuel on top of whatever ConsumeFuel calls Exec makes
// internally, and denying the call outright if its derived capability
// request does not pass the gate.
func (vm *VM) Call(ctx context.Context, name string, args []byte) ([]byte, error) {
	hc, ok := vm.calls[name]
	if !ok {
		return nil, core.NewError(core.CodeHostFunctionError, "unknown host function: "+name)
	}

	req := hc.Capability(args)
	err := vm.gate.Check(req)
	if vm.observer != nil {
		vm.observer(name, req, err == nil, err)
	}
	if err != nil {
		return nil, err
	}

	if err := vm.meter.ConsumeFuel(HostCallFuelCost); err != nil {
		return nil, err
	}

	return hc.Exec(ctx, args)
}

// Meter exposes the VM's resource meter so a caller can inspect
// remaining fuel/memory after execution, e.g. to tell an out-of-fuel
// failure from an out-of-memory one.
func (vm *VM) Meter() *Meter { return vm.meter }
