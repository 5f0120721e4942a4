package recorder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"mercator-hq/constitution/pkg/constitution/ast"
	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/evidence/storage"
	"mercator-hq/constitution/pkg/policy/detect"
	"mercator-hq/constitution/pkg/policy/engine"
)

type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) Store(context.Context, *evidence.Record) error {
	return errors.New("disk full")
}

func redactedDecision() *engine.Decision {
	sanitized := "Call [REDACTED] now"
	return &engine.Decision{
		Allowed:            true,
		Stage:              ast.StagePost,
		State:              engine.StatePostAllowed,
		Outcome:            engine.OutcomeRedact,
		ResolutionSeverity: ast.SeverityInfo,
		Sanitized:          &sanitized,
		Violations: []engine.Violation{{
			RuleID: "phone", Category: ast.CategoryPrivacy, Severity: ast.SeverityInfo, Action: ast.ActionRedact,
		}},
		Diagnostics:     []detect.Diagnostic{{RuleID: "slow", Reason: detect.ReasonEvaluationTimeout}},
		DocumentVersion: "1.0",
		EvaluatedAt:     time.Now(),
	}
}

func TestRecordDecision(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := storage.NewMemoryStorage()
	r := NewRecorder(store, DefaultConfig())

	err := r.RecordDecision(context.Background(), engine.DecisionRecord{
		Decision:  redactedDecision(),
		Token:     "tok-1",
		ToolName:  "directory",
		SessionID: "s1",
		Payload:   "Call 555-123-4567 now",
	})
	if err != nil {
		t.Fatalf("RecordDecision() error = %v, want nil", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil", err)
	}

	records, err := store.Query(context.Background(), &evidence.Query{})
	if err != nil || len(records) != 1 {
		t.Fatalf("Query() = %d records, %v, want 1", len(records), err)
	}
	rec := records[0]

	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("record id %q is not a UUID: %v", rec.ID, err)
	}
	if rec.Token != "tok-1" || rec.ToolName != "directory" || rec.Stage != "post" || rec.Outcome != "redact" {
		t.Errorf("record = %+v", rec)
	}
	if rec.PayloadHash != HashString("Call 555-123-4567 now") {
		t.Errorf("payload hash = %q", rec.PayloadHash)
	}
	if strings.Contains(rec.PayloadPreview, "555") || rec.PayloadPreview != "Call [REDACTED] now" {
		t.Errorf("preview = %q, want the sanitized payload", rec.PayloadPreview)
	}
	if len(rec.Diagnostics) != 1 || rec.Diagnostics[0] != "slow: evaluation_timeout" {
		t.Errorf("diagnostics = %v", rec.Diagnostics)
	}
	if rec.RecordedAt.IsZero() || !rec.Sanitized {
		t.Errorf("recorded_at = %v sanitized = %v", rec.RecordedAt, rec.Sanitized)
	}
}

func TestBlockedPayloadHasNoPreview(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewRecorder(store, DefaultConfig())

	d := &engine.Decision{Allowed: false, Stage: ast.StagePre, Outcome: engine.OutcomeBlock, ResolutionSeverity: ast.SeverityBlock}
	if err := r.RecordDecision(context.Background(), engine.DecisionRecord{Decision: d, Payload: "diagnose me"}); err != nil {
		t.Fatalf("RecordDecision() error = %v, want nil", err)
	}
	r.Close()

	records, _ := store.Query(context.Background(), &evidence.Query{})
	if len(records) != 1 || records[0].PayloadPreview != "" || records[0].PayloadHash == "" {
		t.Errorf("records = %+v, want hash without preview", records)
	}
}

func TestRecordAfterClose(t *testing.T) {
	r := NewRecorder(storage.NewMemoryStorage(), DefaultConfig())
	r.Close()

	err := r.RecordDecision(context.Background(), engine.DecisionRecord{Decision: redactedDecision()})
	var re *evidence.RecorderError
	if !errors.As(err, &re) {
		t.Errorf("RecordDecision() after Close error = %v, want RecorderError", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}

func TestStorageFailureIsLogged(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRecorder(failingStorage{storage.NewMemoryStorage()}, DefaultConfig())
	if err := r.RecordDecision(context.Background(), engine.DecisionRecord{Decision: redactedDecision()}); err != nil {
		t.Fatalf("RecordDecision() error = %v, want nil (write errors are async)", err)
	}
	r.Close()
}

func TestDisabledRecorder(t *testing.T) {
	store := storage.NewMemoryStorage()
	cfg := DefaultConfig()
	cfg.Enabled = false
	r := NewRecorder(store, cfg)

	if err := r.RecordDecision(context.Background(), engine.DecisionRecord{Decision: redactedDecision()}); err != nil {
		t.Fatalf("RecordDecision() error = %v, want nil", err)
	}
	r.Close()

	if n, _ := store.Count(context.Background(), &evidence.Query{}); n != 0 {
		t.Errorf("disabled recorder stored %d records", n)
	}
}

func TestRecorderWithEngine(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewRecorder(store, DefaultConfig())

	eng, err := engine.New(nil, engine.WithRecorder(r))
	if err != nil {
		t.Fatalf("engine.New() error = %v, want nil", err)
	}
	doc := `version: "1.0"
rules:
  - id: phone
    category: privacy
    severity: info
    stage: post
    condition: {type: pattern, pattern: '\d{3}-\d{4}'}
    action: redact
    message: "hidden"
`
	if err := eng.Reload([]byte(doc), "doc.yaml"); err != nil {
		t.Fatalf("Reload() error = %v, want nil", err)
	}

	ctx := context.Background()
	pre := eng.PreCheck(ctx, &engine.Request{Text: "number please", SessionID: "s9"})
	if _, err := eng.PostCheck(ctx, pre.Token, &engine.ToolOutput{Text: "dial 555-0199"}); err != nil {
		t.Fatalf("PostCheck() error = %v, want nil", err)
	}
	r.Close()

	records, err := store.Query(ctx, &evidence.Query{SessionID: "s9", SortOrder: "asc"})
	if err != nil || len(records) != 2 {
		t.Fatalf("Query() = %d records, %v, want 2", len(records), err)
	}
	if records[0].Token != records[1].Token || records[0].Token == "" {
		t.Errorf("pre/post tokens = %q/%q, want the same token", records[0].Token, records[1].Token)
	}
	for _, rec := range records {
		if rec.Stage == "post" && rec.PayloadPreview != "dial [REDACTED]" {
			t.Errorf("post preview = %q", rec.PayloadPreview)
		}
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer sentence", 10, "a longe..."},
		{"héllo wörld", 6, "hé..."},
		{"héllo", 5, "h..."},
		{"abc", 2, ""},
	}
	for _, tt := range tests {
		if got := Preview(tt.in, tt.max); got != tt.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestHashString(t *testing.T) {
	if HashString("") != "" {
		t.Error("HashString(\"\") should be empty")
	}
	if len(HashString("x")) != 64 || HashString("x") != HashString("x") {
		t.Error("HashString should be a stable hex SHA-256")
	}
}
