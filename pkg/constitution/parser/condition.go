package parser

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/constitution/pkg/constitution/ast"
)

var comparatorAliases = map[string]ast.Comparator{
	"gt": ast.CompareGT, ">": ast.CompareGT,
	"gte": ast.CompareGTE, ">=": ast.CompareGTE,
	"lt": ast.CompareLT, "<": ast.CompareLT,
	"lte": ast.CompareLTE, "<=": ast.CompareLTE,
	"eq": ast.CompareEQ, "==": ast.CompareEQ,
	"ne": ast.CompareNE, "!=": ast.CompareNE,
}

func (b *builder) buildCondition(ruleID string, node *yaml.Node) ast.Condition {
	if node.Kind != yaml.MappingNode {
		b.ruleFail(ruleID, node, "'condition' must be a mapping")
		return nil
	}
	m := newMapping(node)

	typeNode, ok := m.get("type")
	if !ok {
		b.ruleFail(ruleID, node, "condition is missing 'type'")
		return nil
	}

	switch ast.ConditionKind(strings.ToLower(typeNode.Value)) {
	case ast.KindKeyword:
		return b.keywordCondition(ruleID, node, m)
	case ast.KindPattern:
		return b.patternCondition(ruleID, node, m)
	case ast.KindThreshold:
		return b.thresholdCondition(ruleID, node, m)
	case ast.KindRequiredField:
		return b.requiredFieldCondition(ruleID, node, m)
	case ast.KindStructure:
		return b.structureCondition(ruleID, node, m)
	case ast.KindPredicate:
		return b.predicateCondition(ruleID, node, m)
	case ast.KindSimilarity:
		return b.similarityCondition(ruleID, node, m)
	case ast.KindAll, ast.KindAny:
		return b.compositeCondition(ruleID, node, m, ast.ConditionKind(strings.ToLower(typeNode.Value)))
	}

	var kinds []string
	for _, k := range ast.ConditionKinds() {
		kinds = append(kinds, string(k))
	}
	b.invalid(ruleID, typeNode, "condition type", typeNode.Value, kinds)
	return nil
}

func (b *builder) keywordCondition(ruleID string, node *yaml.Node, m *mapping) ast.Condition {
	c := &ast.KeywordCondition{Match: ast.MatchAny}

	kw, ok := m.get("keywords")
	if !ok {
		b.ruleFail(ruleID, node, "keyword condition requires 'keywords'")
	} else {
		c.Keywords = b.stringList(ruleID, kw, "keywords")
		if len(c.Keywords) == 0 && kw.Kind == yaml.SequenceNode {
			b.ruleFail(ruleID, kw, "'keywords' must not be empty")
		}
	}

	if v, ok := m.get("match"); ok {
		c.Match = ast.KeywordMatch(strings.ToLower(v.Value))
		switch c.Match {
		case ast.MatchAny, ast.MatchAll, ast.MatchNone:
		default:
			b.invalid(ruleID, v, "keyword match", v.Value, []string{"any", "all", "none"})
		}
	}
	return c
}

func (b *builder) patternCondition(ruleID string, node *yaml.Node, m *mapping) ast.Condition {
	c := &ast.PatternCondition{Mode: ast.PatternForbid}

	if v, ok := m.get("pattern"); ok && v.Kind == yaml.ScalarNode && v.Value != "" {
		c.Pattern = v.Value
	} else {
		b.ruleFail(ruleID, node, "pattern condition requires a non-empty 'pattern'")
	}

	if v, ok := m.get("mode"); ok {
		c.Mode = ast.PatternMode(strings.ToLower(v.Value))
		if c.Mode != ast.PatternForbid && c.Mode != ast.PatternRequire {
			b.invalid(ruleID, v, "pattern mode", v.Value, []string{"forbid", "require"})
		}
	}
	return c
}

func (b *builder) thresholdCondition(ruleID string, node *yaml.Node, m *mapping) ast.Condition {
	c := &ast.ThresholdCondition{ValueKind: ast.ValueNumber}

	if v, ok := m.get("field"); ok && v.Value != "" {
		c.Field = v.Value
	} else {
		b.ruleFail(ruleID, node, "threshold condition requires 'field'")
	}

	if v, ok := m.get("threshold"); ok && v.Kind == yaml.ScalarNode && v.Value != "" {
		c.Threshold = v.Value
	} else {
		b.ruleFail(ruleID, node, "threshold condition requires a scalar 'threshold'")
	}

	if v, ok := m.get("comparator"); ok {
		cmp, known := comparatorAliases[strings.ToLower(strings.TrimSpace(v.Value))]
		if !known {
			b.invalid(ruleID, v, "comparator", v.Value, []string{"gt", "gte", "lt", "lte", "eq", "ne"})
		}
		c.Comparator = cmp
	} else {
		b.ruleFail(ruleID, node, "threshold condition requires 'comparator'")
	}

	if v, ok := m.get("kind"); ok {
		c.ValueKind = ast.ValueKind(strings.ToLower(v.Value))
		if c.ValueKind != ast.ValueNumber && c.ValueKind != ast.ValueDate {
			b.invalid(ruleID, v, "threshold kind", v.Value, []string{"number", "date"})
		}
	}

	if v, ok := m.get("locale"); ok {
		c.Locale = v.Value
	}
	if v, ok := m.get("required"); ok {
		c.Required = b.boolean(ruleID, v, "required")
	}
	return c
}

func (b *builder) requiredFieldCondition(ruleID string, node *yaml.Node, m *mapping) ast.Condition {
	c := &ast.RequiredFieldCondition{}
	if v, ok := m.get("field"); ok {
		c.Fields = append(c.Fields, b.stringList(ruleID, v, "field")...)
	}
	if v, ok := m.get("fields"); ok {
		c.Fields = append(c.Fields, b.stringList(ruleID, v, "fields")...)
	}
	if len(c.Fields) == 0 {
		b.ruleFail(ruleID, node, "required_field condition requires 'field' or 'fields'")
	}
	return c
}

func (b *builder) structureCondition(ruleID string, node *yaml.Node, m *mapping) ast.Condition {
	c := &ast.StructureCondition{}

	if v, ok := m.get("field"); ok && v.Value != "" {
		c.Field = v.Value
	} else {
		b.ruleFail(ruleID, node, "structure condition requires 'field'")
	}

	if v, ok := m.get("expect"); ok {
		c.Expect = ast.StructureKind(strings.ToLower(v.Value))
		switch c.Expect {
		case ast.ShapeString, ast.ShapeNumber, ast.ShapeBool, ast.ShapeList, ast.ShapeMap:
		default:
			b.invalid(ruleID, v, "structure kind", v.Value, []string{"string", "number", "bool", "list", "map"})
		}
	}

	if v, ok := m.get("max_length"); ok {
		c.MaxLength = b.nonNegative(ruleID, v, "max_length")
	}
	if v, ok := m.get("max_items"); ok {
		c.MaxItems = b.nonNegative(ruleID, v, "max_items")
	}
	if v, ok := m.get("required"); ok {
		c.Required = b.boolean(ruleID, v, "required")
	}

	if c.Expect == "" && c.MaxLength == 0 && c.MaxItems == 0 && !c.Required {
		b.ruleFail(ruleID, node, "structure condition needs at least one of 'expect', 'max_length', 'max_items', 'required'")
	}
	return c
}

func (b *builder) predicateCondition(ruleID string, node *yaml.Node, m *mapping) ast.Condition {
	c := &ast.PredicateCondition{}

	if v, ok := m.get("predicate_id"); ok && v.Value != "" {
		c.PredicateID = v.Value
	} else {
		b.ruleFail(ruleID, node, "predicate condition requires 'predicate_id'")
	}

	if v, ok := m.get("args"); ok {
		args, isMap := decodeAny(v).(map[string]any)
		if !isMap {
			b.ruleFail(ruleID, v, "'args' must be a mapping")
		}
		c.Args = args
	}
	return c
}

func (b *builder) similarityCondition(ruleID string, node *yaml.Node, m *mapping) ast.Condition {
	c := &ast.SimilarityCondition{Threshold: ast.DefaultSimilarity}

	if v, ok := m.get("references"); ok {
		c.References = b.stringList(ruleID, v, "references")
	}
	if len(c.References) == 0 {
		b.ruleFail(ruleID, node, "similarity condition requires 'references'")
	}

	if v, ok := m.get("threshold"); ok {
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil || f <= 0 || f > 1 {
			b.ruleFail(ruleID, v, "similarity 'threshold' must be a number in (0, 1]")
		} else {
			c.Threshold = f
		}
	}
	return c
}

// maxConditionDepth bounds all/any nesting.
const maxConditionDepth = 8

func (b *builder) compositeCondition(ruleID string, node *yaml.Node, m *mapping, op ast.ConditionKind) ast.Condition {
	c := &ast.CompositeCondition{Op: op}

	v, ok := m.get("conditions")
	if !ok || v.Kind != yaml.SequenceNode || len(v.Content) == 0 {
		b.ruleFail(ruleID, node, "%s condition requires a non-empty 'conditions' list", op)
		return c
	}
	if b.depth >= maxConditionDepth {
		b.ruleFail(ruleID, v, "conditions nested deeper than %d levels", maxConditionDepth)
		return c
	}

	b.depth++
	defer func() { b.depth-- }()
	for _, sub := range v.Content {
		if cond := b.buildCondition(ruleID, sub); cond != nil {
			c.Conditions = append(c.Conditions, cond)
		}
	}
	return c
}

func (b *builder) boolean(ruleID string, node *yaml.Node, name string) bool {
	v, err := strconv.ParseBool(node.Value)
	if err != nil {
		b.ruleFail(ruleID, node, "'%s' must be a boolean", name)
	}
	return v
}

func (b *builder) nonNegative(ruleID string, node *yaml.Node, name string) int {
	n, err := strconv.Atoi(node.Value)
	if err != nil || n < 0 {
		b.ruleFail(ruleID, node, "'%s' must be a non-negative integer", name)
		return 0
	}
	return n
}
