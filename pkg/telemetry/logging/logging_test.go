package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/constitution/pkg/config"
)

func newRedactor(t *testing.T, custom ...config.RedactPattern) *Redactor {
	t.Helper()
	r, err := NewRedactor(custom)
	if err != nil {
		t.Fatalf("NewRedactor() error = %v, want nil", err)
	}
	return r
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json.Unmarshal(%q) error = %v", buf.String(), err)
	}
	return entry
}

func TestRedactor_RedactString(t *testing.T) {
	r := newRedactor(t, config.RedactPattern{Name: "ticket", Pattern: `TCK-\d+`, Replacement: "TCK-***"})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"email", "contact alice@example.com", "contact a***@example.com"},
		{"api key", "key sk-abcdef123456", "key sk-***"},
		{"ssn", "ssn 123-45-6789", "ssn ***-**-****"},
		{"credit card", "card 4111 1111 1111 1111", "card ****-****-****-1111"},
		{"phone", "call 555-123-4567", "call ***-***-****"},
		{"ipv4", "from 10.1.2.3", "from 10.*.*.*"},
		{"bearer", "Authorization: Bearer abc.def-123", "Authorization: Bearer ***"},
		{"password", "password=hunter2 ok", "password: *** ok"},
		{"custom", "ref TCK-991", "ref TCK-***"},
		{"nothing sensitive", "rule no-medical-advice fired", "rule no-medical-advice fired"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewRedactor_InvalidPattern(t *testing.T) {
	_, err := NewRedactor([]config.RedactPattern{{Name: "broken", Pattern: "[unclosed"}})
	if err == nil {
		t.Fatal("NewRedactor() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("NewRedactor() error = %v, want pattern name", err)
	}
}

func TestRedactor_PatternOrder(t *testing.T) {
	r := newRedactor(t, config.RedactPattern{Name: "custom", Pattern: "x"})
	names := r.Patterns()
	if names[0] != PatternBearerToken {
		t.Errorf("Patterns()[0] = %q, want %q", names[0], PatternBearerToken)
	}
	if names[len(names)-1] != "custom" {
		t.Errorf("last pattern = %q, want custom", names[len(names)-1])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"token", true},
		{"post_token", true},
		{"API_KEY", true},
		{"password", true},
		{"cc", true},
		{"success", false},
		{"access", false},
		{"rule_id", false},
		{"tool", false},
	}

	for _, tt := range tests {
		if got := isSensitiveKey(tt.key); got != tt.want {
			t.Errorf("isSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r := newRedactor(t)

	got := r.RedactAttr(slog.Group("req",
		slog.String("email", "c@d.io"),
		slog.Any("err", errors.New("lookup of 10.0.0.7 failed")),
		slog.Any("notes", []string{"x@y.org", "plain"}),
		slog.Int("count", 3),
	))

	group := got.Value.Group()
	if group[0].Value.String() != "c***@d.io" {
		t.Errorf("email = %q, want c***@d.io", group[0].Value.String())
	}
	if group[1].Value.String() != "lookup of 10.*.*.* failed" {
		t.Errorf("err = %q", group[1].Value.String())
	}
	notes, ok := group[2].Value.Any().([]string)
	if !ok || notes[0] != "x***@y.org" || notes[1] != "plain" {
		t.Errorf("notes = %v", group[2].Value.Any())
	}
	if group[3].Value.Int64() != 3 {
		t.Errorf("count = %v, want 3", group[3].Value)
	}
}

func TestNew_RedactsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", RedactPII: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	logger.Info("mail bob@example.com",
		"token", "5b1f0c9e-aaaa-bbbb-cccc-000000000000",
		"count", 3,
		"note", "ip 192.168.1.1",
	)

	entry := decodeLine(t, &buf)
	if entry["msg"] != "mail b***@example.com" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["token"] != "5b1f***" {
		t.Errorf("token = %v, want 5b1f***", entry["token"])
	}
	if entry["count"] != float64(3) {
		t.Errorf("count = %v, want 3", entry["count"])
	}
	if entry["note"] != "ip 192.*.*.*" {
		t.Errorf("note = %v", entry["note"])
	}
}

func TestNew_WithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{RedactPII: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	logger.With("api_key", "abcdefghijk").WithGroup("req").Info("x", "email", "c@d.io")

	entry := decodeLine(t, &buf)
	if entry["api_key"] != "abcd***" {
		t.Errorf("api_key = %v, want abcd***", entry["api_key"])
	}
	req, ok := entry["req"].(map[string]any)
	if !ok {
		t.Fatalf("req = %T, want group", entry["req"])
	}
	if req["email"] != "c***@d.io" {
		t.Errorf("req.email = %v", req["email"])
	}
}

func TestNew_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{RedactPII: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	ctx := WithSession(context.Background(), "s-1")
	ctx = WithTool(ctx, "lookup_records")
	ctx = WithToken(ctx, "0123456789abcdef")
	ctx = WithRequestID(ctx, "req-9")
	logger.InfoContext(ctx, "pre-check")

	entry := decodeLine(t, &buf)
	want := map[string]any{
		"session_id": "s-1",
		"tool":       "lookup_records",
		"token":      "0123***",
		"request_id": "req-9",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}

	if Session(ctx) != "s-1" || Tool(ctx) != "lookup_records" || RequestID(ctx) != "req-9" {
		t.Error("context accessors did not return attached values")
	}
	if Token(context.Background()) != "" {
		t.Error("Token(empty ctx) != \"\"")
	}
}

func TestNew_NoRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	logger.Info("plain", "email", "bob@example.com")
	if !strings.Contains(buf.String(), "email=bob@example.com") {
		t.Errorf("output = %q, want email unchanged", buf.String())
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	logger.Info("dropped")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("output = %q, want nothing below warn", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("output = %q, want warn record", buf.String())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("New(bad level) error = nil, want error")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New(bad format) error = nil, want error")
	}
	if _, err := New(Config{RedactPII: true, RedactPatterns: []config.RedactPattern{{Name: "b", Pattern: "("}}}); err == nil {
		t.Error("New(bad pattern) error = nil, want error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v, want nil", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig().Logging
	logger, err := FromConfig(cfg, &buf)
	if err != nil {
		t.Fatalf("FromConfig() error = %v, want nil", err)
	}

	Component(logger, "engine").Info("ready", "email", "a@b.io")
	entry := decodeLine(t, &buf)
	if entry["component"] != "engine" || entry["email"] != "a***@b.io" {
		t.Errorf("entry = %v", entry)
	}
}
