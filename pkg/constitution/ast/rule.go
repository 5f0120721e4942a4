package ast

import "strings"

// Category groups rules by the concern they protect.
type Category string

const (
	CategoryPrivacy       Category = "privacy"
	CategoryMedicalSafety Category = "medical-safety"
	CategoryFactuality    Category = "factuality"
	CategoryTone          Category = "tone"
	CategoryDataScope     Category = "data-scope"
	CategorySafety        Category = "safety"
	CategoryLegal         Category = "legal"
	CategoryGeneral       Category = "general"
)

// Categories lists every recognised category in document order.
func Categories() []Category {
	return []Category{
		CategoryPrivacy, CategoryMedicalSafety, CategoryFactuality, CategoryTone,
		CategoryDataScope, CategorySafety, CategoryLegal, CategoryGeneral,
	}
}

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Stage is the evaluation phase a rule applies to.
type Stage string

const (
	StagePre  Stage = "pre"
	StagePost Stage = "post"
	StageBoth Stage = "both"
)

// IsValid reports whether s is a recognised stage.
func (s Stage) IsValid() bool {
	return s == StagePre || s == StagePost || s == StageBoth
}

// Includes reports whether a rule declared for s applies at stage.
func (s Stage) Includes(stage Stage) bool {
	return s == StageBoth || s == stage
}

// Action is the consequence a violation requests.
type Action string

const (
	ActionLog      Action = "log"
	ActionAnnotate Action = "warn-annotate"
	ActionRedact   Action = "redact"
	ActionBlock    Action = "block"
)

// Actions lists every recognised action.
func Actions() []Action {
	return []Action{ActionLog, ActionAnnotate, ActionRedact, ActionBlock}
}

// IsValid reports whether a is a recognised action.
func (a Action) IsValid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// Rule is a single immutable constitution rule.
type Rule struct {
	ID        string
	Category  Category
	Severity  Severity
	Stage     Stage
	Enabled   bool
	Condition Condition
	Action    Action

	// Message is the user-facing template. Supported placeholders are
	// {{rule_id}}, {{category}}, {{severity}}, {{stage}}, {{tool}} and {{matched}}.
	Message string

	Description string

	// Disclaimer is appended to an allowed response when the rule fires.
	Disclaimer string

	// SuggestTools names alternatives surfaced when the rule fires.
	SuggestTools []string

	// Tools restricts the rule to the listed tool names. Empty means all tools.
	Tools []string

	// Order is the declaration index of the rule within its document.
	Order int

	Location Location
}

// AppliesTo reports whether the rule is evaluated for the given stage and tool.
func (r *Rule) AppliesTo(stage Stage, tool string) bool {
	if !r.Enabled || !r.Stage.Includes(stage) {
		return false
	}
	if len(r.Tools) == 0 {
		return true
	}
	for _, t := range r.Tools {
		if strings.EqualFold(t, tool) {
			return true
		}
	}
	return false
}
