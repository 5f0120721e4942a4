package evaluator

import (
	"context"
	"fmt"
	"strings"

	"mercator-hq/constitution/pkg/constitution/ast"
	"mercator-hq/constitution/pkg/policy/detect"
)

// Violation is a rule that fired.
type Violation struct {
	RuleID         string       `json:"rule_id"`
	Category       ast.Category `json:"category"`
	Severity       ast.Severity `json:"severity"`
	Action         ast.Action   `json:"action"`
	MatchedContext string       `json:"matched_context"`
	Message        string       `json:"message"`
	Disclaimer     string       `json:"disclaimer,omitempty"`
	SuggestedTools []string     `json:"suggested_tools,omitempty"`

	// Order is the declaration index of the rule, the tie-break key.
	Order int `json:"-"`

	// Spans locate the matched text in the normalized payload.
	Spans []detect.Span `json:"-"`
}

// Result aggregates the outcome of every applicable rule.
type Result struct {
	Violations  []Violation
	Diagnostics []detect.Diagnostic
	Evaluated   int
}

// Evaluate prepares ec and runs EvaluateAll.
func (rs *RuleSet) Evaluate(ctx context.Context, ec *detect.Context) *Result {
	return rs.EvaluateAll(ctx, detect.Prepare(ec, rs.locale))
}

// EvaluateAll runs every rule applicable to the input's stage and tool.
func (rs *RuleSet) EvaluateAll(ctx context.Context, in *detect.Input) *Result {
	res := &Result{}

	for _, cr := range rs.rules {
		if !cr.rule.AppliesTo(in.Stage, in.ToolName) {
			continue
		}
		res.Evaluated++

		m := rs.run(ctx, cr, in)
		if m.Diagnostic != nil {
			diag := *m.Diagnostic
			diag.RuleID = cr.rule.ID
			res.Diagnostics = append(res.Diagnostics, diag)
			continue
		}
		if !m.Matched {
			continue
		}
		res.Violations = append(res.Violations, newViolation(cr.rule, m, in))
	}

	return res
}

// Rescan runs the detector of one rule again, typically on sanitized text.
// Unknown ids return a non-match.
func (rs *RuleSet) Rescan(ctx context.Context, ruleID string, in *detect.Input) detect.MatchResult {
	cr, ok := rs.byID[ruleID]
	if !ok {
		return detect.MatchResult{}
	}
	return rs.run(ctx, cr, in)
}

func (rs *RuleSet) run(ctx context.Context, cr *compiledRule, in *detect.Input) detect.MatchResult {
	if !cr.budgeted || rs.budget < 0 {
		return safeDetect(ctx, cr, in)
	}

	bctx, cancel := context.WithTimeout(ctx, rs.budget)
	defer cancel()

	done := make(chan detect.MatchResult, 1)
	go func() {
		done <- safeDetect(bctx, cr, in)
	}()

	select {
	case m := <-done:
		return m
	case <-bctx.Done():
		return detect.MatchResult{Diagnostic: &detect.Diagnostic{
			Reason: detect.ReasonEvaluationTimeout,
			Detail: fmt.Sprintf("exceeded budget of %s", rs.budget),
		}}
	}
}

// safeDetect converts a detector panic into a diagnostic.
func safeDetect(ctx context.Context, cr *compiledRule, in *detect.Input) (m detect.MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			reason := detect.ReasonSchemaMismatch
			if cr.budgeted {
				reason = detect.ReasonPredicateError
			}
			m = detect.MatchResult{Diagnostic: &detect.Diagnostic{Reason: reason, Detail: fmt.Sprintf("detector panic: %v", r)}}
		}
	}()
	return cr.detector.Detect(ctx, in)
}

func newViolation(r *ast.Rule, m detect.MatchResult, in *detect.Input) Violation {
	return Violation{
		RuleID:         r.ID,
		Category:       r.Category,
		Severity:       r.Severity,
		Action:         r.Action,
		MatchedContext: m.Context,
		Message:        RenderMessage(r, m.Context, in),
		Disclaimer:     r.Disclaimer,
		SuggestedTools: r.SuggestTools,
		Order:          r.Order,
		Spans:          m.Spans,
	}
}

// RenderMessage expands the placeholders of a rule's message template.
func RenderMessage(r *ast.Rule, matched string, in *detect.Input) string {
	tmpl := r.Message
	if tmpl == "" {
		tmpl = "Rule {{rule_id}} ({{category}}) was triggered."
	}
	var stage, tool string
	if in != nil && in.Context != nil {
		stage, tool = string(in.Stage), in.ToolName
	}
	return strings.NewReplacer(
		"{{rule_id}}", r.ID,
		"{{category}}", string(r.Category),
		"{{severity}}", r.Severity.String(),
		"{{stage}}", stage,
		"{{tool}}", tool,
		"{{matched}}", matched,
	).Replace(tmpl)
}
