package policy

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// compiledRule pairs a rule's compiled expr-lang program with its
// declared effect and capability list.
type compiledRule struct {
	name         string
	program      *vm.Program
	effect       Effect
	capabilities []core.CapabilityKind
}

// CompiledPolicy is a Definition with its rule expressions compiled and
// its grant/deny sets validated for conflicts, ready for repeated calls
// to Decide.
type CompiledPolicy struct {
	id           string
	rules        []compiledRule
	grants       []GrantDef
	denies       []DenyDef
	defaultEffect Effect
	rateLimits   map[string]RateLimitSpec
	tenantScopes map[string][]string
	redactions   []RedactionDef
}

// ID returns the policy's identifier, used to derive deterministic
// decision ids.
func (p *CompiledPolicy) ID() string { return p.id }

// Compile validates and compiles def, detecting grant/deny conflicts at
// compile time per section 4.5.
func Compile(def Definition) (*CompiledPolicy, error) {
	if def.ID == "" {
		return nil, core.NewError(core.CodePolicyParseError, "policy id is required")
	}

	rules := make([]compiledRule, 0, len(def.Rules))
	for _, r := range def.Rules {
		program, err := expr.Compile(r.Expr, expr.AsBool())
		if err != nil {
			return nil, core.NewError(core.CodePolicyParseError, fmt.Sprintf("rule %q: %v", r.Name, err))
		}
		rules = append(rules, compiledRule{
			name:         r.Name,
			program:      program,
			effect:       r.Effect,
			capabilities: r.Capabilities,
		})
	}

	if err := detectConflicts(def.Grants, def.Denies); err != nil {
		return nil, err
	}

	return &CompiledPolicy{
		id:            def.ID,
		rules:         rules,
		grants:        def.Grants,
		denies:        def.Denies,
		defaultEffect: def.Default,
		rateLimits:    def.RateLimits,
		tenantScopes:  def.TenantScopes,
		redactions:    def.Redactions,
	}, nil
}

// detectConflicts fails compilation if the same (tenant, descriptor)
// pair appears in both the grant and deny lists, i.e. the composed
// policy simultaneously allows and denies the same capability.
func detectConflicts(grants, denies []GrantDef) error {
	granted := make(map[string]bool, len(grants))
	for _, g := range grants {
		granted[conflictKey(g)] = true
	}
	for _, d := range denies {
		if granted[conflictKey(d)] {
			return core.NewError(core.CodePolicyConflict,
				fmt.Sprintf("descriptor %q is both granted and denied", d.Descriptor))
		}
	}
	return nil
}

func conflictKey(g GrantDef) string {
	return fmt.Sprintf("%s|%s", g.TenantID, g.Descriptor)
}
