package engine

import "mercator-hq/constitution/pkg/constitution/ast"

// resolve returns the maximum severity and the binding violation: the
// highest severity, earliest declared. Violations arrive in declaration order.
func resolve(violations []Violation) (ast.Severity, *Violation) {
	severity := ast.SeverityNone
	var binding *Violation
	for i := range violations {
		v := &violations[i]
		if binding == nil || v.Severity > severity || (v.Severity == severity && v.Order < binding.Order) {
			severity = v.Severity
			binding = v
		}
	}
	return severity, binding
}

func outcomeFor(severity ast.Severity, violations []Violation, redacted bool) Outcome {
	switch {
	case severity.Blocks():
		return OutcomeBlock
	case redacted:
		return OutcomeRedact
	case len(violations) > 0:
		return OutcomeAnnotate
	}
	return OutcomeAllow
}

func hasAction(violations []Violation, action ast.Action) bool {
	for _, v := range violations {
		if v.Action == action {
			return true
		}
	}
	return false
}

// collect gathers distinct non-empty values in order of first appearance.
func collect(violations []Violation, pick func(Violation) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range violations {
		for _, s := range pick(v) {
			if s != "" && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
