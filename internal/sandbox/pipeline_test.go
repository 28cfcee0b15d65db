package sandbox

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cathedral-fabric/fabric/internal/capgate"
	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/policy"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

func newTestInvoker(t *testing.T, def policy.Definition) (*Invoker, *eventlog.Log) {
	t.Helper()
	log, err := eventlog.Create(filepath.Join(t.TempDir(), "events.cath-log"))
	if err != nil {
		t.Fatalf("eventlog.Create() error = %v", err)
	}
	t.Cleanup(func() { log.Close() })

	set := core.NewCapabilitySet()
	set.Grant(core.Capability{Kind: core.CapabilityNetRead, HostAllowlist: []string{"*.example.com"}})
	gate := capgate.NewGate(set)

	compiled, err := policy.Compile(def)
	if err != nil {
		t.Fatalf("policy.Compile() error = %v", err)
	}

	clock := core.NewClock(0)
	return NewInvoker(gate, compiled, log, clock), log
}

func fetchSpec() Spec {
	return Spec{
		Name:                 "fetch",
		RequiredCapabilities: []capgate.Request{{Kind: core.CapabilityNetRead, Domain: "api.example.com"}},
		Bound:                core.ResourceBound{Fuel: 100_000},
		NormalizeKind:        Json,
	}
}

func echoHostCalls() []HostCall {
	return []HostCall{
		{
			Name:       "http.get",
			Capability: func(args []byte) capgate.Request { return capgate.Request{Kind: core.CapabilityNetRead, Domain: "api.example.com"} },
			Exec:       func(ctx context.Context, args []byte) ([]byte, error) { return []byte(`{"status": "ok"}`), nil },
		},
	}
}

func TestInvokeHappyPathLogsAllSteps(t *testing.T) {
	inv, log := newTestInvoker(t, policy.Definition{ID: "allow-all", Default: policy.Allow})

	exec := func(ctx context.Context, vm *VM, input []byte) ([]byte, error) {
		return vm.Call(ctx, "http.get", input)
	}

	out, err := inv.Invoke(context.Background(), fetchSpec(), core.NewRunID(), core.NewNodeID(), []byte(`{"q":1}`), echoHostCalls(), exec)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if string(out.Bytes) != `{"status":"ok"}` {
		t.Errorf("Bytes = %s", out.Bytes)
	}

	events, err := log.All()
	if err != nil {
		t.Fatalf("log.All() error = %v", err)
	}
	var kinds []core.EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	wantContains := []core.EventKind{
		core.EventToolInvoked,
		core.EventCapabilityCheck,
		core.EventPolicyDecision,
		core.EventToolCompleted,
	}
	for _, want := range wantContains {
		found := false
		for _, k := range kinds {
			if k == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("log missing event kind %v; got %v", want, kinds)
		}
	}
}

func TestInvokeLogIsChainValid(t *testing.T) {
	inv, log := newTestInvoker(t, policy.Definition{ID: "allow-all", Default: policy.Allow})
	exec := func(ctx context.Context, vm *VM, input []byte) ([]byte, error) {
		return vm.Call(ctx, "http.get", input)
	}
	if _, err := inv.Invoke(context.Background(), fetchSpec(), core.NewRunID(), core.NewNodeID(), []byte(`{}`), echoHostCalls(), exec); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	events, err := log.All()
	if err != nil {
		t.Fatalf("log.All() error = %v", err)
	}
	if err := eventlog.ValidateSequence(events); err != nil {
		t.Errorf("ValidateSequence() error = %v, want a valid hash chain", err)
	}
}

func TestInvokeDeniesOnMissingCapability(t *testing.T) {
	inv, _ := newTestInvoker(t, policy.Definition{ID: "allow-all", Default: policy.Allow})
	spec := fetchSpec()
	spec.RequiredCapabilities = []capgate.Request{{Kind: core.CapabilityDbWrite, Table: "orders"}}

	exec := func(ctx context.Context, vm *VM, input []byte) ([]byte, error) {
		return []byte(`{}`), nil
	}
	_, err := inv.Invoke(context.Background(), spec, core.NewRunID(), core.NewNodeID(), []byte(`{}`), nil, exec)
	if err == nil {
		t.Fatal("Invoke() should deny a tool requiring an ungranted capability")
	}
	fabricErr, ok := err.(*core.Error)
	if !ok || fabricErr.Code != core.CodeCapabilityDenied {
		t.Fatalf("error = %v, want CodeCapabilityDenied", err)
	}
}

func TestInvokeDeniesOnPolicyDefaultDeny(t *testing.T) {
	inv, _ := newTestInvoker(t, policy.Definition{ID: "deny-fetch", Default: policy.Deny})
	exec := func(ctx context.Context, vm *VM, input []byte) ([]byte, error) {
		return vm.Call(ctx, "http.get", input)
	}
	_, err := inv.Invoke(context.Background(), fetchSpec(), core.NewRunID(), core.NewNodeID(), []byte(`{}`), echoHostCalls(), exec)
	if err == nil {
		t.Fatal("Invoke() should fail closed when the policy default is deny")
	}
	fabricErr, ok := err.(*core.Error)
	if !ok || (fabricErr.Code != core.CodePolicyDenied && fabricErr.Code != core.CodeCapabilityDenied) {
		t.Fatalf("error = %v, want CodePolicyDenied or CodeCapabilityDenied", err)
	}
}
