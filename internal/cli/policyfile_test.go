package cli

import (
	"testing"

	"github.com/cathedral-fabric/fabric/internal/policy"
)

func TestLoadPolicyDefinition(t *testing.T) {
	path := writeTestFile(t, "policy.json", `{
		"id": "test-policy",
		"default": "deny",
		"rules": [
			{"name": "allow-net", "expr": "tool_name == \"fetch\"", "effect": "allow", "capabilities": ["NetRead"]}
		],
		"grants": [
			{"descriptor": "grant-1", "capability": {"kind": "NetRead", "host_allowlist": ["example.com"]}}
		]
	}`)

	def, err := loadPolicyDefinition(path)
	if err != nil {
		t.Fatalf("loadPolicyDefinition() error = %v", err)
	}
	if def.ID != "test-policy" {
		t.Fatalf("ID = %q, want test-policy", def.ID)
	}
	if def.Default != policy.Deny {
		t.Fatalf("Default = %v, want Deny", def.Default)
	}
	if len(def.Rules) != 1 || def.Rules[0].Effect != policy.Allow {
		t.Fatalf("Rules = %+v, want one Allow rule", def.Rules)
	}
	if len(def.Grants) != 1 || def.Grants[0].Descriptor != "grant-1" {
		t.Fatalf("Grants = %+v, want one descriptor grant-1", def.Grants)
	}

	if _, err := policy.Compile(def); err != nil {
		t.Fatalf("policy.Compile(def) error = %v", err)
	}
}

func TestLoadPolicyDefinitionUnknownCapability(t *testing.T) {
	path := writeTestFile(t, "policy.json", `{
		"id": "bad-policy",
		"default": "allow",
		"rules": [{"name": "r", "expr": "true", "effect": "allow", "capabilities": ["Teleport"]}]
	}`)

	if _, err := loadPolicyDefinition(path); err == nil {
		t.Fatal("loadPolicyDefinition() with unknown capability: want error, got nil")
	}
}
