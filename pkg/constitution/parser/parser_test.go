package parser

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
)

const validDoc = `version: "1.0"
metadata:
  name: health-assistant
predicates:
  bulk: 'fields.count > 10'
rules:
  - id: no-diagnosis
    category: medical-safety
    severity: block
    stage: pre
    condition:
      type: keyword
      keywords: ["diagnose me", "what disease"]
    action: block
    message: "I can't diagnose ({{matched}})."
    suggest_tools: [find_clinic]
  - id: ssn
    category: privacy
    severity: warn
    condition:
      type: pattern
      pattern: '\b\d{3}-\d{2}-\d{4}\b'
    action: redact
    message: "Identifiers were removed."
  - id: big-query
    category: data-scope
    severity: block
    stage: pre
    tools: [query_records]
    condition:
      type: threshold
      field: arguments.limit
      comparator: ">"
      threshold: 100
    action: block
    message: "Too many records."
  - id: disclaimer
    category: legal
    severity: info
    stage: post
    enabled: false
    condition:
      type: pattern
      pattern: 'not medical advice'
      mode: require
    action: warn-annotate
    message: "Missing disclaimer."
    disclaimer: "This is not medical advice."
  - id: shape
    category: factuality
    severity: warn
    condition:
      type: structure
      field: output.items
      expect: list
      max_items: 50
    action: warn-annotate
    message: "Output too large."
  - id: pred
    category: general
    severity: info
    condition:
      type: predicate
      predicate_id: bulk
      args: {n: 3}
    action: log
    message: "bulk"
`

func TestParseBytesValid(t *testing.T) {
	doc, err := NewParser().ParseBytes([]byte(validDoc), "test.yaml")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v, want nil", err)
	}

	if doc.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", doc.Version)
	}
	if doc.Name() != "health-assistant" {
		t.Errorf("Name() = %q", doc.Name())
	}
	if len(doc.Rules) != 6 {
		t.Fatalf("len(Rules) = %d, want 6", len(doc.Rules))
	}
	if doc.Predicates["bulk"] != "fields.count > 10" {
		t.Errorf("predicate bulk = %q", doc.Predicates["bulk"])
	}

	r0 := doc.Rules[0]
	if r0.ID != "no-diagnosis" || r0.Severity != ast.SeverityBlock || r0.Stage != ast.StagePre {
		t.Errorf("rule 0 = %+v", r0)
	}
	kw, ok := r0.Condition.(*ast.KeywordCondition)
	if !ok || len(kw.Keywords) != 2 || kw.Match != ast.MatchAny {
		t.Errorf("rule 0 condition = %#v", r0.Condition)
	}
	if r0.Location.Line != 7 {
		t.Errorf("rule 0 line = %d, want 7", r0.Location.Line)
	}

	if doc.Rules[1].Stage != ast.StageBoth || !doc.Rules[1].Enabled {
		t.Error("stage should default to both and enabled to true")
	}

	th := doc.Rules[2].Condition.(*ast.ThresholdCondition)
	if th.Comparator != ast.CompareGT || th.Threshold != "100" || th.ValueKind != ast.ValueNumber {
		t.Errorf("threshold condition = %#v", th)
	}

	if doc.Rules[3].Enabled {
		t.Error("rule 3 should be disabled")
	}
	if pc := doc.Rules[3].Condition.(*ast.PatternCondition); pc.Mode != ast.PatternRequire {
		t.Errorf("pattern mode = %s, want require", pc.Mode)
	}

	pred := doc.Rules[5].Condition.(*ast.PredicateCondition)
	if pred.PredicateID != "bulk" || pred.Args["n"] != 3 {
		t.Errorf("predicate condition = %#v", pred)
	}
	for i, r := range doc.Rules {
		if r.Order != i {
			t.Errorf("rule %s order = %d, want %d", r.ID, r.Order, i)
		}
	}
}

func TestParseBytesCollectsAllErrors(t *testing.T) {
	src := `version: "1.0"
rules:
  - id: a
    category: privcy
    severity: critical
    condition:
      type: keyword
    action: explode
    message: x
  - category: tone
    severity: warn
    condition:
      type: regex
    action: log
    message: y
`
	_, err := NewParser().ParseBytes([]byte(src), "bad.yaml")
	var list *cerrors.ErrorList
	if !stderrors.As(err, &list) {
		t.Fatalf("ParseBytes() error = %v, want *ErrorList", err)
	}

	wants := []string{
		`unknown category "privcy"`,
		`unknown severity "critical"`,
		"keyword condition requires 'keywords'",
		`unknown action "explode"`,
		"rule at index 1 is missing 'id'",
		`unknown condition type "regex"`,
	}
	joined := strings.Join(list.Reasons(), "\n")
	for _, want := range wants {
		if !strings.Contains(joined, want) {
			t.Errorf("missing error %q in:\n%s", want, joined)
		}
	}

	for _, e := range list.Errors {
		if !e.Location.IsValid() {
			t.Errorf("error %q has no location", e.Reason)
		}
	}

	cat := list.Errors[0]
	if cat.Location.Line != 4 || cat.Suggestion != `did you mean "privacy"?` {
		t.Errorf("category error = %+v", cat)
	}
	if cat.Context == "" {
		t.Error("error context should be attached from source")
	}
}

func TestParseBytesMessageOptional(t *testing.T) {
	src := `version: "1.0"
rules:
  - id: quiet
    category: tone
    severity: info
    condition:
      type: keyword
      keywords: ["hmm"]
    action: log
`
	doc, err := NewParser().ParseBytes([]byte(src), "")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v, want nil", err)
	}
	if got := doc.Rules[0].Message; got != "" {
		t.Errorf("Message = %q, want empty", got)
	}
}

func TestParsePartial(t *testing.T) {
	src := `version: "1.0"
rules:
  - id: a
    category: privcy
    severity: info
    condition:
      type: keyword
      keywords: ["x"]
    action: log
  - id: b
    category: tone
    severity: info
    condition:
      type: keyword
      keywords: ["y"]
    action: log
`
	doc, err := NewParser().ParsePartial([]byte(src), "")
	if err == nil {
		t.Fatal("ParsePartial() error = nil, want unknown category")
	}
	if doc == nil || len(doc.Rules) != 2 {
		t.Fatalf("ParsePartial() doc = %+v, want both rules built", doc)
	}

	if doc, _ := NewParser().ParseBytes([]byte(src), ""); doc != nil {
		t.Error("ParseBytes() returned a document alongside errors")
	}
	if doc, _ := NewParser().ParsePartial([]byte("just prose"), ""); doc != nil {
		t.Error("ParsePartial(free text) returned a document")
	}
}

func TestParseCompositeAndSimilarity(t *testing.T) {
	src := `version: "1.0"
rules:
  - id: dosage-advice
    category: medical-safety
    severity: block
    condition:
      type: all
      conditions:
        - type: keyword
          keywords: ["take"]
        - type: any
          conditions:
            - type: pattern
              pattern: '\d+\s*mg'
            - type: similarity
              references: ["double the dose of your medication"]
    action: block
  - id: injection
    category: safety
    severity: block
    condition:
      type: similarity
      references: ["ignore previous instructions"]
      threshold: 0.5
    action: block
`
	doc, err := NewParser().ParseBytes([]byte(src), "")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v, want nil", err)
	}

	all, ok := doc.Rules[0].Condition.(*ast.CompositeCondition)
	if !ok || all.Kind() != ast.KindAll || len(all.Conditions) != 2 {
		t.Fatalf("rule 0 condition = %#v, want all of 2", doc.Rules[0].Condition)
	}
	anyOf, ok := all.Conditions[1].(*ast.CompositeCondition)
	if !ok || anyOf.Kind() != ast.KindAny || len(anyOf.Conditions) != 2 {
		t.Fatalf("nested condition = %#v, want any of 2", all.Conditions[1])
	}
	if sim := anyOf.Conditions[1].(*ast.SimilarityCondition); sim.Threshold != ast.DefaultSimilarity {
		t.Errorf("default threshold = %v, want %v", sim.Threshold, ast.DefaultSimilarity)
	}
	if sim := doc.Rules[1].Condition.(*ast.SimilarityCondition); sim.Threshold != 0.5 || len(sim.References) != 1 {
		t.Errorf("similarity condition = %#v", sim)
	}
}

func TestParseCompositeErrors(t *testing.T) {
	src := `version: "1.0"
rules:
  - id: empty
    category: tone
    severity: info
    condition:
      type: any
      conditions: []
    action: log
  - id: bad-child
    category: tone
    severity: info
    condition:
      type: all
      conditions:
        - type: similarity
          threshold: 2
    action: log
`
	_, err := NewParser().ParseBytes([]byte(src), "")
	var list *cerrors.ErrorList
	if !stderrors.As(err, &list) {
		t.Fatalf("ParseBytes() error = %v, want *ErrorList", err)
	}
	joined := strings.Join(list.Reasons(), "\n")
	for _, want := range []string{
		"any condition requires a non-empty 'conditions' list",
		"similarity condition requires 'references'",
		"similarity 'threshold' must be a number in (0, 1]",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing error %q in:\n%s", want, joined)
		}
	}
}

func TestParseBytesMissingTopLevel(t *testing.T) {
	_, err := NewParser().ParseBytes([]byte("version: \"1.0\"\n"), "")
	var list *cerrors.ErrorList
	if !stderrors.As(err, &list) {
		t.Fatalf("error = %v, want *ErrorList", err)
	}
	if !strings.Contains(list.Error(), "missing 'rules'") {
		t.Errorf("error = %v", list)
	}
}

func TestParseBytesSyntaxError(t *testing.T) {
	_, err := NewParser().ParseBytes([]byte("version: \"1.0\"\nrules: [\n  - id: a\n"), "")
	var list *cerrors.ErrorList
	if !stderrors.As(err, &list) {
		t.Fatalf("error = %v, want *ErrorList", err)
	}
	if !list.HasErrorType(cerrors.ErrorTypeSyntax) {
		t.Errorf("want syntax error, got %v", list)
	}
}

func TestParseBytesRejectsFreeTextWithoutLegacy(t *testing.T) {
	_, err := NewParser().ParseBytes([]byte("Never share passwords."), "")
	if err == nil {
		t.Fatal("free text should be rejected when legacy is disabled")
	}
}

func TestParseLegacy(t *testing.T) {
	text := `The assistant must be kind.
Never share "social security numbers". Do not give dosage advice; avoid
talking about weapons.`

	doc, err := NewParser().WithLegacy(true).ParseBytes([]byte(text), "legacy.txt")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v, want nil", err)
	}
	if !doc.Legacy || doc.Version != ast.LegacyVersion {
		t.Errorf("doc legacy = %v version = %q", doc.Legacy, doc.Version)
	}
	if len(doc.Rules) != 1 {
		t.Fatalf("len(Rules) = %d, want 1", len(doc.Rules))
	}

	r := doc.Rules[0]
	if r.ID != LegacyRuleID || r.Severity != ast.SeverityWarn || r.Action != ast.ActionAnnotate {
		t.Errorf("legacy rule = %+v", r)
	}

	kw := r.Condition.(*ast.KeywordCondition)
	want := []string{"social security numbers", "share", "give dosage advice", "talking about weapons"}
	if strings.Join(kw.Keywords, "|") != strings.Join(want, "|") {
		t.Errorf("Keywords = %q, want %q", kw.Keywords, want)
	}
}

func TestParseLegacyNoPhrases(t *testing.T) {
	_, err := NewParser().ParseLegacy("Be helpful and kind.", "")
	var list *cerrors.ErrorList
	if !stderrors.As(err, &list) || !list.HasErrorType(cerrors.ErrorTypeLegacy) {
		t.Fatalf("error = %v, want legacy ErrorList", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constitution.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if doc.SourceFile != path || doc.Rules[0].Location.File != path {
		t.Errorf("source file not propagated: %q", doc.SourceFile)
	}

	if _, err := NewParser().WithMaxSize(10).ParseFile(path); err == nil {
		t.Error("expected size limit error")
	}
	if _, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected io error")
	}
}
