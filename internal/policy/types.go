// Package policy implements the policy decision engine of section
// 4.5: a compiled policy (rules, capability grants, explicit denies, rate
// limits, tenant scopes, redactions) evaluated in a fixed order against a
// MatchContext to produce a deterministic DecisionProof.
package policy

import "github.com/cathedral-fabric/fabric/pkg/core"

// Effect is the outcome a matched rule or grant/deny descriptor
// contributes to a decision.
type Effect bool

const (
	Deny  Effect = false
	Allow Effect = true
)

// Reasoning is the closed enum a DecisionProof's reasoning tag is drawn
// from, per section 4.5.
type Reasoning uint32

const (
	ReasoningGrantedCapability Reasoning = iota
	ReasoningDeniedCapability
	ReasoningRuleMatch
	ReasoningDefault
	ReasoningConflict
)

func (r Reasoning) String() string {
	switch r {
	case ReasoningGrantedCapability:
		return "GrantedCapability"
	case ReasoningDeniedCapability:
		return "DeniedCapability"
	case ReasoningRuleMatch:
		return "RuleMatch"
	case ReasoningDefault:
		return "Default"
	case ReasoningConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// MatchContext is the input to a single decide() call: the tool name,
// requested capability kind, tenant id, and free-form parameters a rule
// expression may reference.
type MatchContext struct {
	ToolName       string
	CapabilityKind core.CapabilityKind
	TenantID       string
	Parameters     map[string]string
}

// vars exposes the context to an expr-lang rule expression's environment.
func (c MatchContext) vars() map[string]any {
	env := map[string]any{
		"tool_name":       c.ToolName,
		"capability_kind": c.CapabilityKind.String(),
		"tenant_id":       c.TenantID,
		"params":          c.Parameters,
	}
	return env
}

// RuleDef is the structured definition of one rule in source order. The
// reference implementation's own policy language parser
// (cathedral_policy::lang::PolicyParser) is a stub that always returns an
// empty AST; rather than inventing a DSL grammar with no reference to
// ground it on, policies here are built from these structured
// definitions directly, with expr-lang supplying the actual expression
// evaluator the reference's hand-rolled eval_expr stood in for.
type RuleDef struct {
	Name         string
	Expr         string // expr-lang boolean expression over MatchContext.vars()
	Effect       Effect
	Capabilities []core.CapabilityKind
}

// GrantDef and DenyDef describe a capability grant or explicit deny.
// Decide matches one against a MatchContext by capability kind and, when
// TenantID is set, by tenant; the Capability's host/path/table/env
// allowlists are not consulted.
type GrantDef struct {
	Descriptor string // human-readable identity for DecisionProof.MatchedArtifact
	Capability core.Capability
	TenantID   string // empty matches any tenant
}

type DenyDef = GrantDef

// RateLimitSpec configures a per-tool-name deterministic token bucket,
// per section 4.5: "the counter advances in units of logical time,
// not wall clock".
type RateLimitSpec struct {
	Capacity      uint64
	RefillPerTick uint64
}

// RedactionDef is a substring rule: CompiledPolicy.Redact replaces every
// occurrence of Pattern in a string value with Replacement. Decide does
// not apply it, and it is not applied to DecisionProofs or log payloads.
// Grounded on cathedral_policy::redact::RedactionRule.
type RedactionDef struct {
	Name        string
	Pattern     string
	Replacement string
}

// Definition is the uncompiled input to Compile: everything an operator
// configures for one policy.
type Definition struct {
	ID           string
	Rules        []RuleDef
	Grants       []GrantDef
	Denies       []DenyDef
	Default      Effect
	RateLimits   map[string]RateLimitSpec
	TenantScopes map[string][]string // tenant id -> allowed capability kind names
	Redactions   []RedactionDef
}
