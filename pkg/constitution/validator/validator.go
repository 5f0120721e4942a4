package validator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
)

// SupportedVersions lists the document versions this engine understands.
var SupportedVersions = map[string]bool{
	"1.0": true,
}

// Validator checks a parsed document. It is safe for concurrent use once configured.
type Validator struct {
	predicates map[string]bool
	maxRules   int
}

// New creates a validator with no externally registered predicates.
func New() *Validator {
	return &Validator{predicates: make(map[string]bool)}
}

// WithPredicates declares predicate ids registered outside the document.
func (v *Validator) WithPredicates(ids ...string) *Validator {
	for _, id := range ids {
		v.predicates[id] = true
	}
	return v
}

// WithMaxRules limits the number of rules per document. Zero disables the limit.
func (v *Validator) WithMaxRules(n int) *Validator {
	v.maxRules = n
	return v
}

// Validate returns an *errors.ErrorList holding every problem found, or nil.
func (v *Validator) Validate(doc *ast.Document) error {
	el := cerrors.NewErrorList()
	docLoc := ast.Location{File: doc.SourceFile, Line: 1, Column: 1}

	switch {
	case doc.Legacy:
		if doc.Version != ast.LegacyVersion {
			el.AddError(cerrors.ErrorTypeSemantic, "legacy document must carry the legacy version", docLoc)
		}
	case doc.Version == "":
		// reported by the parser as a missing field
	case !SupportedVersions[doc.Version]:
		el.AddErrorWithSuggestion(cerrors.ErrorTypeValidation,
			fmt.Sprintf("unsupported document version %q", doc.Version), docLoc,
			fmt.Sprintf("supported versions: %s", strings.Join(supportedList(), ", ")))
	}

	if v.maxRules > 0 && len(doc.Rules) > v.maxRules {
		el.AddError(cerrors.ErrorTypeValidation,
			fmt.Sprintf("document declares %d rules, maximum is %d", len(doc.Rules), v.maxRules), docLoc)
	}

	seen := make(map[string]ast.Location)
	for _, r := range doc.Rules {
		if r.ID != "" {
			if first, dup := seen[r.ID]; dup {
				el.Add(&cerrors.Error{
					Type:       cerrors.ErrorTypeSemantic,
					RuleID:     r.ID,
					Reason:     fmt.Sprintf("duplicate rule id %q (first declared at %s)", r.ID, first),
					Location:   r.Location,
					Suggestion: "rule ids must be unique and stable across versions",
				})
			} else {
				seen[r.ID] = r.Location
			}
		}
		v.validateRule(doc, r, el)
	}

	return el.ToError()
}

func (v *Validator) validateRule(doc *ast.Document, r *ast.Rule, el *cerrors.ErrorList) {
	if r.Action == ast.ActionBlock && r.Severity != ast.SeverityNone && !r.Severity.Blocks() {
		el.Add(&cerrors.Error{
			Type:       cerrors.ErrorTypeSemantic,
			RuleID:     r.ID,
			Reason:     fmt.Sprintf("action block requires severity block or fatal, got %s", r.Severity),
			Location:   r.Location,
			Suggestion: "raise the severity or use warn-annotate",
		})
	}

	v.validateCondition(doc, r, r.Condition, el)
}

func (v *Validator) validateCondition(doc *ast.Document, r *ast.Rule, cond ast.Condition, el *cerrors.ErrorList) {
	switch c := cond.(type) {
	case *ast.CompositeCondition:
		for _, sub := range c.Conditions {
			v.validateCondition(doc, r, sub, el)
		}
	case *ast.SimilarityCondition:
		for _, ref := range c.References {
			if strings.TrimSpace(ref) == "" {
				el.AddRuleError(cerrors.ErrorTypeValidation, r.ID, "similarity reference must not be blank", r.Location)
			}
		}
	case *ast.KeywordCondition:
		for _, kw := range c.Keywords {
			if strings.TrimSpace(kw) == "" {
				el.AddRuleError(cerrors.ErrorTypeValidation, r.ID, "keyword must not be blank", r.Location)
			}
		}
	case *ast.PatternCondition:
		if c.Pattern != "" {
			if _, err := regexp.Compile(c.Pattern); err != nil {
				el.AddRuleError(cerrors.ErrorTypeValidation, r.ID,
					fmt.Sprintf("invalid pattern: %v", err), r.Location)
			}
		}
	case *ast.ThresholdCondition:
		if c.ValueKind == ast.ValueNumber && c.Threshold != "" {
			if f, err := strconv.ParseFloat(c.Threshold, 64); err != nil || math.IsNaN(f) {
				el.AddRuleError(cerrors.ErrorTypeValidation, r.ID,
					fmt.Sprintf("threshold %q is not a number", c.Threshold), r.Location)
			}
		}
	case *ast.PredicateCondition:
		if c.PredicateID != "" && !v.predicates[c.PredicateID] {
			if _, declared := doc.Predicates[c.PredicateID]; !declared {
				el.Add(&cerrors.Error{
					Type:       cerrors.ErrorTypeSemantic,
					RuleID:     r.ID,
					Reason:     fmt.Sprintf("unknown predicate %q", c.PredicateID),
					Location:   r.Location,
					Suggestion: cerrors.SuggestValue(c.PredicateID, v.known(doc)),
				})
			}
		}
	}
}

func (v *Validator) known(doc *ast.Document) []string {
	var ids []string
	for id := range v.predicates {
		ids = append(ids, id)
	}
	for id := range doc.Predicates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func supportedList() []string {
	var out []string
	for v := range SupportedVersions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
