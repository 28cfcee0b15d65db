package policy

import "strings"

// RedactedView is the outcome of applying a policy's redaction rules to
// one string value, grounded on cathedral_policy::redact::RedactedView.
type RedactedView struct {
	Redacted      string
	RedactionCount int
	AppliedRules  []string
}

// IsRedacted reports whether any rule fired.
func (v RedactedView) IsRedacted() bool { return v.RedactionCount > 0 }

// Redact applies p's configured redaction rules to value in order,
// accumulating which rules fired. Rules are plain substring replacements,
// matching the reference redactor's fallback behavior for non-regex
// rules (the reference's own "regex" mode is also a substring
// replacement, since it never wires in a real regex engine).
func (p *CompiledPolicy) Redact(value string) RedactedView {
	redacted := value
	view := RedactedView{}
	for _, rule := range p.redactions {
		if !strings.Contains(redacted, rule.Pattern) {
			continue
		}
		count := strings.Count(redacted, rule.Pattern)
		redacted = strings.ReplaceAll(redacted, rule.Pattern, rule.Replacement)
		view.RedactionCount += count
		view.AppliedRules = append(view.AppliedRules, rule.Name)
	}
	view.Redacted = redacted
	return view
}
