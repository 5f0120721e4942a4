package parser

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
)

var (
	documentKeys = []string{"version", "metadata", "predicates", "rules"}
	ruleKeys     = []string{
		"id", "category", "severity", "stage", "enabled", "tools", "condition",
		"action", "message", "disclaimer", "suggest_tools", "description",
	}
)

// builder constructs an ast.Document from a YAML mapping node, collecting
// every error instead of stopping at the first.
type builder struct {
	source string
	errors *cerrors.ErrorList
	depth  int // all/any nesting of the condition being built
}

func newBuilder(source string) *builder {
	return &builder{source: source, errors: cerrors.NewErrorList()}
}

func (b *builder) loc(node *yaml.Node) ast.Location {
	return location(node, b.source)
}

func (b *builder) fail(node *yaml.Node, format string, args ...any) {
	b.errors.AddError(cerrors.ErrorTypeStructural, fmt.Sprintf(format, args...), b.loc(node))
}

func (b *builder) ruleFail(ruleID string, node *yaml.Node, format string, args ...any) {
	b.errors.AddRuleError(cerrors.ErrorTypeStructural, ruleID, fmt.Sprintf(format, args...), b.loc(node))
}

func (b *builder) invalid(ruleID string, node *yaml.Node, what, value string, valid []string) {
	b.errors.Add(&cerrors.Error{
		Type:       cerrors.ErrorTypeValidation,
		RuleID:     ruleID,
		Reason:     fmt.Sprintf("unknown %s %q", what, value),
		Location:   b.loc(node),
		Suggestion: cerrors.SuggestValue(value, valid),
	})
}

func (b *builder) buildDocument(node *yaml.Node) *ast.Document {
	doc := &ast.Document{
		Metadata:   make(map[string]any),
		Predicates: make(map[string]string),
		SourceFile: b.source,
	}

	m := newMapping(node)
	for _, dup := range m.duplicates() {
		b.fail(dup, "duplicate document key %q", dup.Value)
	}
	for _, key := range m.order {
		if !contains(documentKeys, key) {
			f := m.entries[key]
			b.errors.AddErrorWithSuggestion(cerrors.ErrorTypeStructural,
				fmt.Sprintf("unknown document key %q", key), b.loc(f.key),
				cerrors.SuggestValue(key, documentKeys))
		}
	}

	if v, ok := m.get("version"); !ok {
		b.errors.AddErrorWithSuggestion(cerrors.ErrorTypeStructural, "missing 'version'",
			b.loc(node), cerrors.SuggestMissingField("version", `"1.0"`))
	} else if s, ok := b.scalar(v); ok {
		doc.Version = s
	} else {
		b.fail(v, "'version' must be a string")
	}

	if v, ok := m.get("metadata"); ok {
		if md, isMap := decodeAny(v).(map[string]any); isMap {
			doc.Metadata = md
		} else if v.Tag != "!!null" {
			b.fail(v, "'metadata' must be a mapping")
		}
	}

	if v, ok := m.get("predicates"); ok {
		b.buildPredicates(v, doc)
	}

	rules, ok := m.get("rules")
	switch {
	case !ok:
		b.errors.AddErrorWithSuggestion(cerrors.ErrorTypeStructural, "missing 'rules'",
			b.loc(node), cerrors.SuggestMissingField("rules", "[...]"))
	case rules.Kind != yaml.SequenceNode:
		b.fail(rules, "'rules' must be a list")
	default:
		doc.Rules = make([]*ast.Rule, 0, len(rules.Content))
		for i, rn := range rules.Content {
			if r := b.buildRule(rn, i); r != nil {
				doc.Rules = append(doc.Rules, r)
			}
		}
	}

	return doc
}

func (b *builder) buildPredicates(node *yaml.Node, doc *ast.Document) {
	if node.Kind != yaml.MappingNode {
		b.fail(node, "'predicates' must be a mapping of id to expression")
		return
	}
	m := newMapping(node)
	for _, dup := range m.duplicates() {
		b.fail(dup, "duplicate predicate %q", dup.Value)
	}
	for _, id := range m.order {
		f := m.entries[id]
		expr, ok := b.scalar(f.value)
		if !ok || strings.TrimSpace(expr) == "" {
			b.fail(f.value, "predicate %q must be a non-empty expression", id)
			continue
		}
		doc.Predicates[id] = expr
	}
}

func (b *builder) buildRule(node *yaml.Node, index int) *ast.Rule {
	if node.Kind != yaml.MappingNode {
		b.fail(node, "rule at index %d must be a mapping", index)
		return nil
	}

	m := newMapping(node)
	rule := &ast.Rule{
		Stage:    ast.StageBoth,
		Enabled:  true,
		Order:    index,
		Location: b.loc(node),
	}

	if v, ok := m.get("id"); ok {
		if s, isStr := b.scalar(v); isStr && strings.TrimSpace(s) != "" {
			rule.ID = strings.TrimSpace(s)
			rule.Location = b.loc(v)
		} else {
			b.fail(v, "rule at index %d has an empty 'id'", index)
		}
	} else {
		b.errors.AddErrorWithSuggestion(cerrors.ErrorTypeStructural,
			fmt.Sprintf("rule at index %d is missing 'id'", index), b.loc(node),
			cerrors.SuggestMissingField("id", "no-diagnosis"))
	}
	id := rule.ID

	for _, dup := range m.duplicates() {
		b.ruleFail(id, dup, "duplicate rule key %q", dup.Value)
	}
	for _, key := range m.order {
		if !contains(ruleKeys, key) {
			f := m.entries[key]
			b.errors.Add(&cerrors.Error{
				Type:       cerrors.ErrorTypeStructural,
				RuleID:     id,
				Reason:     fmt.Sprintf("unknown rule key %q", key),
				Location:   b.loc(f.key),
				Suggestion: cerrors.SuggestValue(key, ruleKeys),
			})
		}
	}

	if v, ok := b.required(m, id, node, "category"); ok {
		rule.Category = ast.Category(strings.ToLower(v.Value))
		if !rule.Category.IsValid() {
			b.invalid(id, v, "category", v.Value, categoryNames())
		}
	}

	if v, ok := b.required(m, id, node, "severity"); ok {
		sev, err := ast.ParseSeverity(v.Value)
		if err != nil {
			b.invalid(id, v, "severity", v.Value, ast.SeverityNames())
		}
		rule.Severity = sev
	}

	if v, ok := m.get("stage"); ok {
		rule.Stage = ast.Stage(strings.ToLower(v.Value))
		if !rule.Stage.IsValid() {
			b.invalid(id, v, "stage", v.Value, []string{"pre", "post", "both"})
		}
	}

	if v, ok := m.get("enabled"); ok {
		enabled, err := strconv.ParseBool(v.Value)
		if err != nil {
			b.ruleFail(id, v, "'enabled' must be a boolean")
		}
		rule.Enabled = enabled
	}

	if v, ok := b.required(m, id, node, "action"); ok {
		rule.Action = ast.Action(strings.ToLower(v.Value))
		if !rule.Action.IsValid() {
			b.invalid(id, v, "action", v.Value, actionNames())
		}
	}

	if v, ok := m.get("message"); ok {
		if s, isStr := b.scalar(v); isStr {
			rule.Message = s
		} else if v.Tag != "!!null" {
			b.ruleFail(id, v, "'message' must be a string")
		}
	}
	if v, ok := m.get("description"); ok {
		rule.Description = v.Value
	}
	if v, ok := m.get("disclaimer"); ok {
		rule.Disclaimer = v.Value
	}
	if v, ok := m.get("tools"); ok {
		rule.Tools = b.stringList(id, v, "tools")
	}
	if v, ok := m.get("suggest_tools"); ok {
		rule.SuggestTools = b.stringList(id, v, "suggest_tools")
	}

	if v, ok := m.get("condition"); ok {
		rule.Condition = b.buildCondition(id, v)
	} else {
		b.ruleFail(id, node, "missing 'condition'")
	}

	return rule
}

// required fetches a scalar field, recording an error when it is absent or empty.
func (b *builder) required(m *mapping, ruleID string, parent *yaml.Node, name string) (*yaml.Node, bool) {
	v, ok := m.get(name)
	if !ok {
		b.errors.Add(&cerrors.Error{
			Type:       cerrors.ErrorTypeStructural,
			RuleID:     ruleID,
			Reason:     fmt.Sprintf("missing '%s'", name),
			Location:   b.loc(parent),
			Suggestion: cerrors.SuggestMissingField(name, ""),
		})
		return nil, false
	}
	if v.Kind != yaml.ScalarNode || strings.TrimSpace(v.Value) == "" {
		b.ruleFail(ruleID, v, "'%s' must be a non-empty string", name)
		return nil, false
	}
	return v, true
}

func (b *builder) scalar(node *yaml.Node) (string, bool) {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		return "", false
	}
	return node.Value, true
}

func (b *builder) stringList(ruleID string, node *yaml.Node, name string) []string {
	if node.Kind == yaml.ScalarNode && node.Value != "" {
		return []string{node.Value}
	}
	if node.Kind != yaml.SequenceNode {
		b.ruleFail(ruleID, node, "'%s' must be a list of strings", name)
		return nil
	}
	out := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		s, ok := b.scalar(item)
		if !ok || strings.TrimSpace(s) == "" {
			b.ruleFail(ruleID, item, "'%s' entries must be non-empty strings", name)
			continue
		}
		out = append(out, s)
	}
	return out
}

func categoryNames() []string {
	var names []string
	for _, c := range ast.Categories() {
		names = append(names, string(c))
	}
	return names
}

func actionNames() []string {
	var names []string
	for _, a := range ast.Actions() {
		names = append(names, string(a))
	}
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
