package evaluator

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
	"mercator-hq/constitution/pkg/policy/detect"
)

func kw(id string, order int, stage ast.Stage, sev ast.Severity, words ...string) *ast.Rule {
	return &ast.Rule{
		ID: id, Category: ast.CategoryGeneral, Severity: sev, Stage: stage, Enabled: true,
		Condition: &ast.KeywordCondition{Keywords: words}, Action: ast.ActionAnnotate,
		Message: "{{rule_id}} matched {{matched}} at {{stage}} for {{tool}}", Order: order,
	}
}

func TestEvaluateAllOrderAndStage(t *testing.T) {
	doc := &ast.Document{Version: "1.0", Rules: []*ast.Rule{
		kw("first", 0, ast.StageBoth, ast.SeverityWarn, "alpha"),
		kw("pre-only", 1, ast.StagePre, ast.SeverityBlock, "alpha"),
		kw("post-only", 2, ast.StagePost, ast.SeverityBlock, "alpha"),
		kw("miss", 3, ast.StageBoth, ast.SeverityFatal, "omega"),
		kw("last", 4, ast.StageBoth, ast.SeverityInfo, "alpha"),
	}}

	rs, err := Compile(doc, Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	res := rs.Evaluate(context.Background(), &detect.Context{Stage: ast.StagePre, Text: "ALPHA beta", ToolName: "search"})
	var ids []string
	for _, v := range res.Violations {
		ids = append(ids, v.RuleID)
	}
	if got := strings.Join(ids, ","); got != "first,pre-only,last" {
		t.Errorf("violations = %s, want first,pre-only,last", got)
	}
	if res.Evaluated != 4 {
		t.Errorf("Evaluated = %d, want 4", res.Evaluated)
	}
	if msg := res.Violations[0].Message; msg != "first matched ALPHA at pre for search" {
		t.Errorf("Message = %q", msg)
	}
}

func TestEvaluateAllSkipsMismatchedRules(t *testing.T) {
	doc := &ast.Document{Version: "1.0", Rules: []*ast.Rule{
		{
			ID: "limit", Severity: ast.SeverityBlock, Stage: ast.StageBoth, Enabled: true, Action: ast.ActionBlock,
			Condition: &ast.ThresholdCondition{Field: "arguments.limit", Comparator: ast.CompareGT, Threshold: "10", ValueKind: ast.ValueNumber},
		},
		kw("words", 1, ast.StageBoth, ast.SeverityWarn, "hello"),
	}}
	rs, err := Compile(doc, Options{})
	if err != nil {
		t.Fatal(err)
	}

	res := rs.Evaluate(context.Background(), &detect.Context{
		Stage: ast.StagePre, Text: "hello", Arguments: map[string]any{"limit": "many"},
	})
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].RuleID != "limit" || res.Diagnostics[0].Reason != detect.ReasonSchemaMismatch {
		t.Errorf("Diagnostics = %+v", res.Diagnostics)
	}
	if len(res.Violations) != 1 || res.Violations[0].RuleID != "words" {
		t.Errorf("Violations = %+v, want only words", res.Violations)
	}
}

func TestPredicateBudget(t *testing.T) {
	reg := detect.NewRegistry()
	_ = reg.Register("slow", func(ctx context.Context, _ *detect.Input, _ map[string]any) (bool, string, error) {
		time.Sleep(time.Second)
		return true, "", nil
	})
	_ = reg.Register("boom", func(context.Context, *detect.Input, map[string]any) (bool, string, error) {
		panic("bad predicate")
	})

	doc := &ast.Document{Version: "1.0", Rules: []*ast.Rule{
		{ID: "slow", Severity: ast.SeverityBlock, Stage: ast.StageBoth, Enabled: true, Action: ast.ActionBlock,
			Condition: &ast.PredicateCondition{PredicateID: "slow"}},
		{ID: "boom", Severity: ast.SeverityBlock, Stage: ast.StageBoth, Enabled: true, Action: ast.ActionBlock,
			Condition: &ast.PredicateCondition{PredicateID: "boom"}, Order: 1},
		kw("ok", 2, ast.StageBoth, ast.SeverityWarn, "x"),
	}}

	rs, err := Compile(doc, Options{Predicates: reg, RuleTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	start := time.Now()
	res := rs.Evaluate(context.Background(), &detect.Context{Stage: ast.StagePre, Text: "x"})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("evaluation took %s, budget not enforced", elapsed)
	}

	if len(res.Diagnostics) != 2 {
		t.Fatalf("Diagnostics = %+v, want 2", res.Diagnostics)
	}
	if res.Diagnostics[0].Reason != detect.ReasonEvaluationTimeout {
		t.Errorf("slow reason = %s", res.Diagnostics[0].Reason)
	}
	if res.Diagnostics[1].Reason != detect.ReasonPredicateError {
		t.Errorf("boom reason = %s", res.Diagnostics[1].Reason)
	}
	if len(res.Violations) != 1 || res.Violations[0].RuleID != "ok" {
		t.Errorf("Violations = %+v", res.Violations)
	}
}

func TestCompileDocumentPredicates(t *testing.T) {
	doc := &ast.Document{
		Version:    "1.0",
		Predicates: map[string]string{"bulk": `int(metadata.count) > 100`},
		Rules: []*ast.Rule{{
			ID: "bulk", Severity: ast.SeverityBlock, Stage: ast.StagePost, Enabled: true, Action: ast.ActionBlock,
			Condition: &ast.PredicateCondition{PredicateID: "bulk"},
		}},
	}
	rs, err := Compile(doc, Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	res := rs.Evaluate(context.Background(), &detect.Context{Stage: ast.StagePost, Metadata: map[string]any{"count": 500}})
	if len(res.Violations) != 1 || res.Violations[0].MatchedContext != "predicate bulk" {
		t.Errorf("Violations = %+v", res.Violations)
	}
}

func TestCompileErrors(t *testing.T) {
	doc := &ast.Document{
		Version:    "1.0",
		Predicates: map[string]string{"broken": `metadata.count >`},
		Rules: []*ast.Rule{
			{ID: "p", Condition: &ast.PredicateCondition{PredicateID: "nowhere"}, Location: ast.Location{Line: 9}},
			{ID: "r", Condition: &ast.PatternCondition{Pattern: "[a-"}, Location: ast.Location{Line: 12}},
		},
	}
	_, err := Compile(doc, Options{})
	var list *cerrors.ErrorList
	if !stderrors.As(err, &list) {
		t.Fatalf("Compile() error = %v, want ErrorList", err)
	}
	if list.Count() != 3 {
		t.Errorf("Count() = %d, want 3:\n%v", list.Count(), list)
	}
}

func TestRescan(t *testing.T) {
	doc := &ast.Document{Version: "1.0", Rules: []*ast.Rule{kw("k", 0, ast.StageBoth, ast.SeverityWarn, "secret")}}
	rs, err := Compile(doc, Options{})
	if err != nil {
		t.Fatal(err)
	}
	in := detect.Prepare(&detect.Context{Stage: ast.StagePost, Text: "a [REDACTED] b"}, "")
	if m := rs.Rescan(context.Background(), "k", in); m.Matched {
		t.Error("sanitized text should not match")
	}
	if m := rs.Rescan(context.Background(), "unknown", in); m.Matched {
		t.Error("unknown rule should not match")
	}
}

func TestRenderMessageDefault(t *testing.T) {
	r := &ast.Rule{ID: "x", Category: ast.CategoryTone, Severity: ast.SeverityWarn}
	if got := RenderMessage(r, "", nil); got != "Rule x (tone) was triggered." {
		t.Errorf("RenderMessage() = %q", got)
	}
}

func TestHasPredicate(t *testing.T) {
	pred := &ast.PredicateCondition{PredicateID: "bulk"}
	keyword := &ast.KeywordCondition{Keywords: []string{"x"}}

	tests := []struct {
		name string
		cond ast.Condition
		want bool
	}{
		{"keyword", keyword, false},
		{"predicate", pred, true},
		{"composite without predicate", &ast.CompositeCondition{Op: ast.KindAny, Conditions: []ast.Condition{keyword}}, false},
		{"nested predicate", &ast.CompositeCondition{Op: ast.KindAll, Conditions: []ast.Condition{
			keyword, &ast.CompositeCondition{Op: ast.KindAny, Conditions: []ast.Condition{pred}},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasPredicate(tt.cond); got != tt.want {
				t.Errorf("hasPredicate() = %v, want %v", got, tt.want)
			}
		})
	}
}
