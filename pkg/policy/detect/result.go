package detect

import "fmt"

// Reason classifies why a rule produced no verdict.
type Reason string

const (
	ReasonSchemaMismatch    Reason = "schema_mismatch"
	ReasonEvaluationTimeout Reason = "evaluation_timeout"
	ReasonPredicateError    Reason = "predicate_error"
)

// Diagnostic records a rule that was skipped during evaluation
// (RuleSkipped). EvaluationTimeout is a RuleSkipped with ReasonEvaluationTimeout.
type Diagnostic struct {
	RuleID string
	Reason Reason
	Detail string
}

// Error implements the error interface so diagnostics can be logged as errors.
func (d *Diagnostic) Error() string {
	if d.RuleID == "" {
		return fmt.Sprintf("rule skipped (%s): %s", d.Reason, d.Detail)
	}
	return fmt.Sprintf("rule %s skipped (%s): %s", d.RuleID, d.Reason, d.Detail)
}

// Span is a byte range in Input.Normalized.
type Span struct {
	Start int
	End   int
}

// MatchResult is the verdict of one detector.
type MatchResult struct {
	Matched bool

	// Context is the substring, field or value that triggered the match.
	Context string

	// Spans locate the matched text for redaction. Field based detectors
	// leave it empty.
	Spans []Span

	Diagnostic *Diagnostic
}

func noMatch() MatchResult {
	return MatchResult{}
}

func mismatch(format string, args ...any) MatchResult {
	return MatchResult{Diagnostic: &Diagnostic{Reason: ReasonSchemaMismatch, Detail: fmt.Sprintf(format, args...)}}
}
