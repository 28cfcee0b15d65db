package policy

import (
	"github.com/expr-lang/expr"

	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// DecisionProof is the deterministic, canonically-encodable record of a
// single decide() call, per section 4.5.
type DecisionProof struct {
	DecisionID      core.DecisionID
	PolicyID        string
	Allowed         bool
	MatchedArtifact string
	Reasoning       Reasoning
	LogicalTime     core.LogicalTime
}

// canonicalContext encodes ctx in the canonical codec, ordering the
// Parameters map by key, so identical contexts always produce identical
// bytes regardless of map iteration order.
func canonicalContext(ctx MatchContext) []byte {
	w := codec.NewWriter()
	w.String(ctx.ToolName)
	w.U32(uint32(ctx.CapabilityKind))
	w.String(ctx.TenantID)
	keys := codec.SortedMapKeys(ctx.Parameters)
	w.U32(uint32(len(keys)))
	for _, k := range keys {
		w.String(k)
		w.String(ctx.Parameters[k])
	}
	return w.Finish()
}

// Decide evaluates ctx against p in the fixed order section 4.5
// requires: rules in source order (first match wins), then capability
// grants, then explicit denies, then the policy default. The returned
// proof's DecisionID is a pure function of (p.ID, ctx), so replaying the
// same (policy, context) pair always reproduces the same id.
func (p *CompiledPolicy) Decide(ctx MatchContext, logicalTime core.LogicalTime) (*DecisionProof, error) {
	decisionID := core.DecisionIDFromContext(p.id, canonicalContext(ctx))
	base := DecisionProof{
		DecisionID:  decisionID,
		PolicyID:    p.id,
		LogicalTime: logicalTime,
	}

	env := ctx.vars()
	for _, rule := range p.rules {
		out, err := expr.Run(rule.program, env)
		if err != nil {
			return nil, core.NewError(core.CodePolicyDenied, "rule evaluation error: "+err.Error())
		}
		matched, ok := out.(bool)
		if !ok || !matched {
			continue
		}
		base.Allowed = bool(rule.effect)
		base.MatchedArtifact = rule.name
		base.Reasoning = ReasoningRuleMatch
		return &base, nil
	}

	if tenantScopes, ok := p.tenantScopes[ctx.TenantID]; ok {
		if !tenantAllows(tenantScopes, ctx.CapabilityKind) {
			base.Allowed = false
			base.MatchedArtifact = "tenant_scope:" + ctx.TenantID
			base.Reasoning = ReasoningDeniedCapability
			return &base, nil
		}
	}

	for _, g := range p.grants {
		if !grantApplies(g, ctx) {
			continue
		}
		base.Allowed = true
		base.MatchedArtifact = g.Descriptor
		base.Reasoning = ReasoningGrantedCapability
		return &base, nil
	}

	for _, d := range p.denies {
		if !grantApplies(d, ctx) {
			continue
		}
		base.Allowed = false
		base.MatchedArtifact = d.Descriptor
		base.Reasoning = ReasoningDeniedCapability
		return &base, nil
	}

	base.Allowed = bool(p.defaultEffect)
	base.MatchedArtifact = "default"
	base.Reasoning = ReasoningDefault
	return &base, nil
}

func tenantAllows(scopes []string, kind core.CapabilityKind) bool {
	for _, s := range scopes {
		if s == kind.String() {
			return true
		}
	}
	return false
}

func grantApplies(g GrantDef, ctx MatchContext) bool {
	if g.TenantID != "" && g.TenantID != ctx.TenantID {
		return false
	}
	if g.Capability.Kind != ctx.CapabilityKind {
		return false
	}
	return true
}

// Encode canonically encodes the proof, the form written as the
// PolicyDecision event payload and compared across
// replays for byte-identical reproduction (section 4.5).
func (d *DecisionProof) Encode() []byte {
	w := codec.NewWriter()
	w.ID16(d.DecisionID.Bytes())
	w.String(d.PolicyID)
	w.Bool(d.Allowed)
	w.String(d.MatchedArtifact)
	w.U32(uint32(d.Reasoning))
	w.U64(uint64(d.LogicalTime))
	return w.Finish()
}
