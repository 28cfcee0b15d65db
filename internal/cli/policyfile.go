package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cathedral-fabric/fabric/internal/policy"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// policyFile is the JSON form of a policy.Definition an operator
// authors and `fabric policy validate|test|explain` and `fabric run`
// load and compile, per section 4.5.
type policyFile struct {
	ID           string                          `json:"id"`
	Rules        []policyRule                    `json:"rules,omitempty"`
	Grants       []policyGrant                   `json:"grants,omitempty"`
	Denies       []policyGrant                   `json:"denies,omitempty"`
	Default      string                          `json:"default"` // "allow" | "deny"
	RateLimits   map[string]policy.RateLimitSpec  `json:"rate_limits,omitempty"`
	TenantScopes map[string][]string              `json:"tenant_scopes,omitempty"`
	Redactions   []policy.RedactionDef            `json:"redactions,omitempty"`
}

type policyRule struct {
	Name         string   `json:"name"`
	Expr         string   `json:"expr"`
	Effect       string   `json:"effect"` // "allow" | "deny"
	Capabilities []string `json:"capabilities,omitempty"`
}

type policyGrant struct {
	Descriptor string   `json:"descriptor"`
	Capability capGrant `json:"capability"`
	TenantID   string   `json:"tenant_id,omitempty"`
}

func loadPolicyDefinition(path string) (policy.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy.Definition{}, err
	}
	var pf policyFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return policy.Definition{}, fmt.Errorf("parse policy file: %w", err)
	}

	def := policy.Definition{
		ID:           pf.ID,
		Default:      effectFromString(pf.Default),
		RateLimits:   pf.RateLimits,
		TenantScopes: pf.TenantScopes,
		Redactions:   pf.Redactions,
	}

	for _, r := range pf.Rules {
		caps, err := capabilityKinds(r.Capabilities)
		if err != nil {
			return policy.Definition{}, err
		}
		def.Rules = append(def.Rules, policy.RuleDef{
			Name:         r.Name,
			Expr:         r.Expr,
			Effect:       effectFromString(r.Effect),
			Capabilities: caps,
		})
	}
	for _, g := range pf.Grants {
		gd, err := grantDefFrom(g)
		if err != nil {
			return policy.Definition{}, err
		}
		def.Grants = append(def.Grants, gd)
	}
	for _, d := range pf.Denies {
		dd, err := grantDefFrom(d)
		if err != nil {
			return policy.Definition{}, err
		}
		def.Denies = append(def.Denies, dd)
	}
	return def, nil
}

func grantDefFrom(g policyGrant) (policy.GrantDef, error) {
	kind, err := capabilityKind(g.Capability.Kind)
	if err != nil {
		return policy.GrantDef{}, err
	}
	return policy.GrantDef{
		Descriptor: g.Descriptor,
		TenantID:   g.TenantID,
		Capability: core.Capability{
			Kind:          kind,
			HostAllowlist: g.Capability.HostAllowlist,
			PathPrefixes:  g.Capability.PathPrefixes,
			Tables:        g.Capability.Tables,
			EnvVars:       g.Capability.EnvVars,
			CPULimit:      g.Capability.CPULimit,
			MemLimit:      g.Capability.MemLimit,
			Fuel:          g.Capability.Fuel,
			MemBytes:      g.Capability.MemBytes,
		},
	}, nil
}

func effectFromString(s string) policy.Effect {
	return policy.Effect(s == "allow")
}

func capabilityKinds(names []string) ([]core.CapabilityKind, error) {
	kinds := make([]core.CapabilityKind, 0, len(names))
	for _, n := range names {
		k, err := capabilityKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func capabilityKind(name string) (core.CapabilityKind, error) {
	switch name {
	case "NetRead":
		return core.CapabilityNetRead, nil
	case "NetWrite":
		return core.CapabilityNetWrite, nil
	case "FsRead":
		return core.CapabilityFsRead, nil
	case "FsWrite":
		return core.CapabilityFsWrite, nil
	case "DbRead":
		return core.CapabilityDbRead, nil
	case "DbWrite":
		return core.CapabilityDbWrite, nil
	case "EnvRead":
		return core.CapabilityEnvRead, nil
	case "ClockRead":
		return core.CapabilityClockRead, nil
	case "Exec":
		return core.CapabilityExec, nil
	case "WasmExec":
		return core.CapabilityWasmExec, nil
	default:
		return 0, fmt.Errorf("unknown capability kind %q", name)
	}
}
