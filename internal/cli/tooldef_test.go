package cli

import (
	"context"
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func TestLoadToolRegistryNative(t *testing.T) {
	path := writeTestFile(t, "tools.json", `{
		"tools": [
			{"name": "echoer", "kind": "native", "builtin": "echo", "fuel": 100, "mem_bytes": 1024, "cpu_milli": 10}
		]
	}`)

	reg, err := loadToolRegistry(path)
	if err != nil {
		t.Fatalf("loadToolRegistry() error = %v", err)
	}
	tool, ok := reg["echoer"]
	if !ok {
		t.Fatal("registry missing echoer")
	}
	if len(tool.HostCalls) != 0 {
		t.Fatalf("native tool HostCalls = %v, want none", tool.HostCalls)
	}
	out, err := tool.Exec(context.Background(), nil, []byte(`"hi"`))
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if string(out) != `"hi"` {
		t.Fatalf("Exec() = %q, want %q", out, `"hi"`)
	}
}

func TestLoadToolRegistryUnknownBuiltin(t *testing.T) {
	path := writeTestFile(t, "tools.json", `{
		"tools": [{"name": "x", "kind": "native", "builtin": "nonexistent"}]
	}`)
	if _, err := loadToolRegistry(path); err == nil {
		t.Fatal("loadToolRegistry() with unknown builtin: want error, got nil")
	}
}

func TestBuildToolSubprocessRequiresCommand(t *testing.T) {
	td := toolDef{Name: "runner", Kind: "subprocess"}
	if _, err := buildTool(td); err == nil {
		t.Fatal("buildTool() subprocess with no command: want error, got nil")
	}
}

func TestBuildToolSubprocessHostCall(t *testing.T) {
	td := toolDef{Name: "runner", Kind: "subprocess", Command: []string{"cat"}}
	tool, err := buildTool(td)
	if err != nil {
		t.Fatalf("buildTool() error = %v", err)
	}
	if len(tool.HostCalls) != 1 || tool.HostCalls[0].Name != "run" {
		t.Fatalf("HostCalls = %+v, want one call named run", tool.HostCalls)
	}
	req := tool.HostCalls[0].Capability(nil)
	if req.Kind != core.CapabilityExec {
		t.Fatalf("Capability().Kind = %v, want CapabilityExec", req.Kind)
	}
}

func TestBuildToolRemoteRequiresURL(t *testing.T) {
	td := toolDef{Name: "caller", Kind: "remote"}
	if _, err := buildTool(td); err == nil {
		t.Fatal("buildTool() remote with no url: want error, got nil")
	}
}

func TestBuildToolRemoteHostCall(t *testing.T) {
	td := toolDef{Name: "caller", Kind: "remote", URL: "https://api.example.com/v1/run"}
	tool, err := buildTool(td)
	if err != nil {
		t.Fatalf("buildTool() error = %v", err)
	}
	if len(tool.HostCalls) != 1 || tool.HostCalls[0].Name != "post" {
		t.Fatalf("HostCalls = %+v, want one call named post", tool.HostCalls)
	}
	req := tool.HostCalls[0].Capability(nil)
	if req.Kind != core.CapabilityNetWrite || req.Domain != "api.example.com" {
		t.Fatalf("Capability() = %+v, want NetWrite/api.example.com", req)
	}
}

func TestBuildToolUnknownKind(t *testing.T) {
	td := toolDef{Name: "mystery", Kind: "telepathic"}
	if _, err := buildTool(td); err == nil {
		t.Fatal("buildTool() with unknown kind: want error, got nil")
	}
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path": "example.com",
		"http://example.com:8080":  "example.com",
		"example.com/foo":          "example.com",
	}
	for url, want := range cases {
		if got := hostOf(url); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestParseCapabilities(t *testing.T) {
	bound := core.ResourceBound{Fuel: 1}
	reqs, err := parseCapabilities([]string{"NetRead:example.com", "FsWrite:/tmp/out", "ClockRead"}, bound)
	if err != nil {
		t.Fatalf("parseCapabilities() error = %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("len(reqs) = %d, want 3", len(reqs))
	}
	if reqs[0].Kind != core.CapabilityNetRead || reqs[0].Domain != "example.com" {
		t.Fatalf("reqs[0] = %+v, want NetRead/example.com", reqs[0])
	}
	if reqs[1].Kind != core.CapabilityFsWrite || reqs[1].Path != "/tmp/out" {
		t.Fatalf("reqs[1] = %+v, want FsWrite//tmp/out", reqs[1])
	}
	if reqs[2].Kind != core.CapabilityClockRead {
		t.Fatalf("reqs[2] = %+v, want ClockRead", reqs[2])
	}
}

func TestParseCapabilitiesUnknown(t *testing.T) {
	if _, err := parseCapabilities([]string{"Teleport"}, core.ResourceBound{}); err == nil {
		t.Fatal("parseCapabilities() with unknown capability: want error, got nil")
	}
}
