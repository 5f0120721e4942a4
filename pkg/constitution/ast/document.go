package ast

import "time"

// LegacyVersion is the version assigned to documents built from free text.
const LegacyVersion = "legacy"

// Document is a parsed constitution. It is immutable once returned by the parser.
type Document struct {
	Version  string
	Metadata map[string]any

	// Rules are kept in declaration order.
	Rules []*Rule

	// Predicates maps predicate ids to CEL expressions declared in the document.
	Predicates map[string]string

	// Legacy marks documents converted from the free-text format.
	Legacy bool

	SourceFile string
	ParsedAt   time.Time
}

// Name returns metadata.name when present.
func (d *Document) Name() string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	if name, ok := d.Metadata["name"].(string); ok {
		return name
	}
	return ""
}

// Rule returns the rule with the given id.
func (d *Document) Rule(id string) (*Rule, bool) {
	for _, r := range d.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// EnabledRules returns the number of enabled rules.
func (d *Document) EnabledRules() int {
	n := 0
	for _, r := range d.Rules {
		if r.Enabled {
			n++
		}
	}
	return n
}
