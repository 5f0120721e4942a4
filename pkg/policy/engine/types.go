package engine

import (
	"time"

	"mercator-hq/constitution/pkg/constitution/ast"
	"mercator-hq/constitution/pkg/policy/detect"
	"mercator-hq/constitution/pkg/policy/evaluator"
)

// Violation is a rule that fired during a check.
type Violation = evaluator.Violation

// Outcome is the binding consequence of a decision.
type Outcome string

const (
	OutcomeAllow    Outcome = "allow"
	OutcomeAnnotate Outcome = "annotate"
	OutcomeRedact   Outcome = "redact"
	OutcomeBlock    Outcome = "block"
)

// Request is the payload of a pre-check.
type Request struct {
	// Text is the user's raw request.
	Text string

	// ToolName is the tool the orchestrator intends to call, if known.
	ToolName string

	// Arguments are the structured tool-call arguments.
	Arguments map[string]any

	// Metadata carries ambient facts rules may consult.
	Metadata map[string]any

	SessionID string
	Locale    string
	Timestamp time.Time
}

// ToolOutput is the payload of a post-check.
type ToolOutput struct {
	// Text is the textual rendering of the tool's result.
	Text string

	// Output is the structured tool result.
	Output any

	// Metadata are tool-reported facts, such as the records touched.
	Metadata map[string]any
}

// Decision is the enforcement verdict of one check. It is created per call
// and owned by the caller.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Stage   ast.Stage `json:"stage"`
	State   State     `json:"state"`
	Outcome Outcome   `json:"outcome"`

	// Violations are in rule declaration order.
	Violations  []Violation         `json:"violations"`
	Diagnostics []detect.Diagnostic `json:"diagnostics,omitempty"`

	// Sanitized is set only when Allowed and at least one redact rule fired.
	// Text outside redacted spans is returned exactly as the tool produced it.
	Sanitized *string `json:"sanitized_payload,omitempty"`

	// ResolutionSeverity is the maximum severity across violations.
	ResolutionSeverity ast.Severity `json:"resolution_severity"`

	// Message is the user-facing explanation of the binding violation.
	Message string `json:"message,omitempty"`

	Disclaimers    []string `json:"disclaimers,omitempty"`
	SuggestedTools []string `json:"suggested_tools,omitempty"`

	// Token is issued by an allowed pre-check and presented to PostCheck.
	Token string `json:"token,omitempty"`

	// Failure explains a decision taken by the fail mode rather than by rules.
	Failure string `json:"failure,omitempty"`

	DocumentVersion string        `json:"document_version,omitempty"`
	EvaluatedAt     time.Time     `json:"evaluated_at"`
	Duration        time.Duration `json:"duration"`
}

// RuleIDs returns the ids of the violations in order.
func (d *Decision) RuleIDs() []string {
	ids := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		ids[i] = v.RuleID
	}
	return ids
}

// Blocked reports whether the decision refuses the payload.
func (d *Decision) Blocked() bool {
	return !d.Allowed
}

// DecisionRecord is what the engine hands to a Recorder after every check.
type DecisionRecord struct {
	Decision *Decision

	// Token is the pre-check token the decision belongs to, if any.
	Token     string
	ToolName  string
	SessionID string

	// Payload is the evaluated text before sanitization.
	Payload string
}
