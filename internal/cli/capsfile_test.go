package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCapabilitySet(t *testing.T) {
	path := writeTestFile(t, "caps.json", `{
		"grants": [
			{"kind": "NetRead", "host_allowlist": ["example.com"]},
			{"kind": "FsWrite", "path_prefixes": ["/tmp/out"]}
		]
	}`)

	set, err := loadCapabilitySet(path)
	if err != nil {
		t.Fatalf("loadCapabilitySet() error = %v", err)
	}
	all := set.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
	if all[0].Kind != core.CapabilityNetRead || all[0].HostAllowlist[0] != "example.com" {
		t.Fatalf("grant[0] = %+v, want NetRead/example.com", all[0])
	}
	if all[1].Kind != core.CapabilityFsWrite || all[1].PathPrefixes[0] != "/tmp/out" {
		t.Fatalf("grant[1] = %+v, want FsWrite//tmp/out", all[1])
	}
}

func TestLoadCapabilitySetUnknownKind(t *testing.T) {
	path := writeTestFile(t, "caps.json", `{"grants": [{"kind": "Teleport"}]}`)

	if _, err := loadCapabilitySet(path); err == nil {
		t.Fatal("loadCapabilitySet() with unknown kind: want error, got nil")
	}
}

func TestCapabilityKindRoundTrip(t *testing.T) {
	names := []string{
		"NetRead", "NetWrite", "FsRead", "FsWrite", "DbRead", "DbWrite",
		"EnvRead", "ClockRead", "Exec", "WasmExec",
	}
	for _, name := range names {
		kind, err := capabilityKind(name)
		if err != nil {
			t.Errorf("capabilityKind(%q) error = %v", name, err)
			continue
		}
		if kind.String() != name {
			t.Errorf("capabilityKind(%q).String() = %q, want %q", name, kind.String(), name)
		}
	}
}
