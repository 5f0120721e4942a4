package evaluator

import (
	"fmt"
	"sort"
	"time"

	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
	"mercator-hq/constitution/pkg/policy/detect"
)

// DefaultRuleTimeout is the budget of a single predicate evaluation.
const DefaultRuleTimeout = 50 * time.Millisecond

// Options controls compilation.
type Options struct {
	// Predicates resolves predicate ids not declared in the document.
	Predicates *detect.Registry

	// RuleTimeout bounds predicate evaluation. Zero selects DefaultRuleTimeout,
	// a negative value disables the budget.
	RuleTimeout time.Duration

	// DefaultLocale reads field values when no locale is given.
	DefaultLocale string
}

type compiledRule struct {
	rule     *ast.Rule
	detector detect.Detector
	budgeted bool
}

// RuleSet is an immutable, executable document.
type RuleSet struct {
	doc    *ast.Document
	rules  []*compiledRule
	byID   map[string]*compiledRule
	budget time.Duration
	locale string
}

// Compile builds a RuleSet. Detector compilation problems (invalid regular
// expressions, bad CEL predicates, unknown predicate ids) are returned
// together as an *errors.ErrorList.
func Compile(doc *ast.Document, opts Options) (*RuleSet, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	budget := opts.RuleTimeout
	if budget == 0 {
		budget = DefaultRuleTimeout
	}
	locale := opts.DefaultLocale
	if locale == "" {
		locale = "en"
	}
	base := opts.Predicates
	if base == nil {
		base = detect.NewRegistry()
	}

	el := cerrors.NewErrorList()
	docLoc := ast.Location{File: doc.SourceFile, Line: 1, Column: 1}

	registry := base
	if len(doc.Predicates) > 0 {
		env, err := detect.NewCELEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create predicate environment: %w", err)
		}

		ids := make([]string, 0, len(doc.Predicates))
		for id := range doc.Predicates {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		compiled := make(map[string]detect.Predicate, len(ids))
		for _, id := range ids {
			p, err := detect.CompileCEL(env, doc.Predicates[id])
			if err != nil {
				el.AddError(cerrors.ErrorTypeValidation, fmt.Sprintf("predicate %q: %v", id, err), docLoc)
				continue
			}
			compiled[id] = p
		}
		registry = base.Overlay(compiled)
	}

	rs := &RuleSet{
		doc:    doc,
		rules:  make([]*compiledRule, 0, len(doc.Rules)),
		byID:   make(map[string]*compiledRule, len(doc.Rules)),
		budget: budget,
		locale: locale,
	}

	for _, r := range doc.Rules {
		d, err := detect.Compile(r.Condition, registry)
		if err != nil {
			el.AddRuleError(cerrors.ErrorTypeValidation, r.ID, err.Error(), r.Location)
			continue
		}
		cr := &compiledRule{rule: r, detector: d, budgeted: hasPredicate(r.Condition)}
		rs.rules = append(rs.rules, cr)
		rs.byID[r.ID] = cr
	}

	if el.HasErrors() {
		return nil, el
	}
	return rs, nil
}

// hasPredicate reports whether cond runs a predicate, directly or nested in
// all/any.
func hasPredicate(cond ast.Condition) bool {
	switch c := cond.(type) {
	case *ast.PredicateCondition:
		return true
	case *ast.CompositeCondition:
		for _, sub := range c.Conditions {
			if hasPredicate(sub) {
				return true
			}
		}
	}
	return false
}

// Document returns the source document.
func (rs *RuleSet) Document() *ast.Document {
	return rs.doc
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// DefaultLocale returns the locale used when a payload declares none.
func (rs *RuleSet) DefaultLocale() string {
	return rs.locale
}
