package errors

import (
	"fmt"
	"strings"

	"mercator-hq/constitution/pkg/constitution/ast"
)

// ErrorType is the phase of loading that rejected the document.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // YAML does not parse
	ErrorTypeStructural ErrorType = "structural" // missing or malformed field
	ErrorTypeSemantic   ErrorType = "semantic"   // duplicate id, unresolved predicate
	ErrorTypeValidation ErrorType = "validation" // unknown enum value, bad regex
	ErrorTypeLegacy     ErrorType = "legacy"     // free-text prose with no usable phrase
	ErrorTypeIO         ErrorType = "io"
)

// Error is one problem found in a constitution document. Context holds the
// numbered source excerpt rendered by AttachContext.
type Error struct {
	Type       ErrorType
	Reason     string
	RuleID     string
	Location   ast.Location
	Context    string
	Suggestion string
}

func (e *Error) Error() string {
	head := fmt.Sprintf("[%s] %s", e.Type, e.Reason)
	if e.RuleID != "" {
		head += " (rule " + e.RuleID + ")"
	}
	lines := []string{head}
	if e.Location.IsValid() {
		lines = append(lines, "  --> "+e.Location.String())
	}
	if e.Context != "" {
		lines = append(lines, "  |", strings.TrimRight(e.Context, "\n"), "  |")
	}
	if e.Suggestion != "" {
		lines = append(lines, "  = suggestion: "+e.Suggestion)
	}
	return strings.Join(lines, "\n") + "\n"
}

// ErrorList collects every problem of a rejected document so authors can fix
// them in one pass. It is the ParseError surfaced by Load.
type ErrorList struct {
	Errors []*Error
}

func NewErrorList() *ErrorList {
	return &ErrorList{}
}

func (el *ErrorList) Add(err *Error) {
	el.Errors = append(el.Errors, err)
}

func (el *ErrorList) AddError(t ErrorType, reason string, loc ast.Location) {
	el.Add(&Error{Type: t, Reason: reason, Location: loc})
}

func (el *ErrorList) AddRuleError(t ErrorType, ruleID, reason string, loc ast.Location) {
	el.Add(&Error{Type: t, RuleID: ruleID, Reason: reason, Location: loc})
}

func (el *ErrorList) AddErrorWithSuggestion(t ErrorType, reason string, loc ast.Location, suggestion string) {
	el.Add(&Error{Type: t, Reason: reason, Location: loc, Suggestion: suggestion})
}

// Merge appends the errors of other, which may be nil.
func (el *ErrorList) Merge(other *ErrorList) {
	if other != nil {
		el.Errors = append(el.Errors, other.Errors...)
	}
}

func (el *ErrorList) HasErrors() bool { return len(el.Errors) > 0 }

func (el *ErrorList) Count() int { return len(el.Errors) }

// HasErrorType reports whether any recorded error has type t.
func (el *ErrorList) HasErrorType(t ErrorType) bool {
	for _, err := range el.Errors {
		if err.Type == t {
			return true
		}
	}
	return false
}

// Reasons lists the reason of each error in the order recorded.
func (el *ErrorList) Reasons() []string {
	out := make([]string, 0, len(el.Errors))
	for _, err := range el.Errors {
		out = append(out, err.Reason)
	}
	return out
}

func (el *ErrorList) Error() string {
	if len(el.Errors) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "constitution rejected with %d error(s):\n", len(el.Errors))
	for i, err := range el.Errors {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, err.Error())
	}
	return sb.String()
}

// ToError converts an empty list to a nil error.
func (el *ErrorList) ToError() error {
	if len(el.Errors) == 0 {
		return nil
	}
	return el
}
