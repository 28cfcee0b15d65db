package core

import "testing"

func TestCapabilitySetNetDomainMatching(t *testing.T) {
	set := NewCapabilitySet()
	set.Grant(Capability{Kind: CapabilityNetRead, HostAllowlist: []string{"*.example.com", "api.service.com"}})

	cases := map[string]bool{
		"example.com":     true,
		"sub.example.com": true,
		"api.service.com": true,
		"other.com":       false,
	}
	for domain, want := range cases {
		if got := set.CanReadNet(domain); got != want {
			t.Errorf("CanReadNet(%q) = %v, want %v", domain, got, want)
		}
	}
}

func TestCapabilitySetNetWildcard(t *testing.T) {
	set := NewCapabilitySet()
	set.Grant(Capability{Kind: CapabilityNetRead, HostAllowlist: []string{"*"}})
	if !set.CanReadNet("any.domain.com") {
		t.Error("wildcard allowlist should match any domain")
	}
}

func TestCapabilitySetFsPathMatching(t *testing.T) {
	set := NewCapabilitySet()
	set.Grant(Capability{Kind: CapabilityFsWrite, PathPrefixes: []string{"./outputs", "./cache"}})

	cases := map[string]bool{
		"./outputs/data.json": true,
		"./cache/tmp":         true,
		"./outputs":           true,
		"./inputs":            false,
	}
	for path, want := range cases {
		if got := set.CanWriteFs(path); got != want {
			t.Errorf("CanWriteFs(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestCapabilitySetFsCurrentDirectory(t *testing.T) {
	set := NewCapabilitySet()
	set.Grant(Capability{Kind: CapabilityFsRead, PathPrefixes: []string{"."}})

	for _, path := range []string{"./file.txt", "file.txt", "./sub/dir/file.txt"} {
		if !set.CanReadFs(path) {
			t.Errorf("CanReadFs(%q) = false, want true for '.' prefix", path)
		}
	}
}

func TestCapabilitySetDbAndEnv(t *testing.T) {
	set := NewCapabilitySet()
	set.Grant(Capability{Kind: CapabilityDbRead, Tables: []string{"users", "posts"}})
	set.Grant(Capability{Kind: CapabilityEnvRead, EnvVars: []string{"PATH", "HOME"}})

	if !set.CanReadDb("users") || !set.CanReadDb("posts") {
		t.Error("expected allowlisted tables to be readable")
	}
	if set.CanReadDb("admin") {
		t.Error("expected non-allowlisted table to be denied")
	}
	if !set.CanReadEnv("PATH") || set.CanReadEnv("SECRET") {
		t.Error("env allowlist not enforced correctly")
	}
}

func TestCapabilitySetWasmBound(t *testing.T) {
	set := NewCapabilitySet()
	set.Grant(Capability{Kind: CapabilityWasmExec, Fuel: 1_000_000, MemBytes: 64 * 1024 * 1024})

	bound, ok := set.WasmBound()
	if !ok {
		t.Fatal("expected a WasmExec bound to be present")
	}
	granted := Capability{Kind: CapabilityWasmExec, Fuel: bound.Fuel, MemBytes: bound.MemBytes}
	if !granted.Satisfies(ResourceBound{Fuel: 1_000_000, MemBytes: 64 * 1024 * 1024}) {
		t.Error("Satisfies() should hold at exactly the granted bound")
	}
	if granted.Satisfies(ResourceBound{Fuel: 1_000_001, MemBytes: 64 * 1024 * 1024}) {
		t.Error("Satisfies() should fail one unit over the granted fuel")
	}
}

func TestMatchesPathPrefixTrailingSlash(t *testing.T) {
	if !MatchesPathPrefix("./outputs/", "./outputs/data.json") {
		t.Error("trailing slash on prefix should normalize away")
	}
}
