package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad fail mode", func(c *Config) { c.Engine.FailMode = "sometimes" }, "engine.fail_mode"},
		{"zero rule timeout", func(c *Config) { c.Engine.RuleTimeout = 0 }, "engine.rule_timeout"},
		{"negative token ttl", func(c *Config) { c.Engine.TokenTTL = -time.Second }, "engine.token_ttl"},
		{"empty placeholder", func(c *Config) { c.Engine.RedactionPlaceholder = "" }, "engine.redaction_placeholder"},
		{"too many passes", func(c *Config) { c.Engine.MaxRedactionPasses = 11 }, "engine.max_redaction_passes"},
		{"negative max rules", func(c *Config) { c.Document.MaxRules = -1 }, "document.max_rules"},
		{"watch without path", func(c *Config) { c.Document.Watch = true }, "document.path"},
		{"git without repository", func(c *Config) { c.Document.Git.Enabled = true }, "document.git.repository"},
		{"git auth type", func(c *Config) { c.Document.Git.Auth.Type = "kerberos" }, "document.git.auth.type"},
		{
			"git token auth without token",
			func(c *Config) {
				c.Document.Git.Enabled = true
				c.Document.Git.Repository = "https://example.com/policies.git"
				c.Document.Git.Auth.Type = "token"
			},
			"document.git.auth.token",
		},
		{
			"git with file watch",
			func(c *Config) {
				c.Document.Git.Enabled = true
				c.Document.Git.Repository = "https://example.com/policies.git"
				c.Document.Watch = true
				c.Document.Path = "constitution.yaml"
			},
			"document.watch",
		},
		{"git poll interval", func(c *Config) { c.Document.Git.Poll.Interval = 0 }, "document.git.poll.interval"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{
			"unnamed redact pattern",
			func(c *Config) { c.Logging.RedactPatterns = []RedactPattern{{Pattern: "x"}} },
			"logging.redact_patterns[0].name",
		},
		{
			"invalid redact pattern",
			func(c *Config) { c.Logging.RedactPatterns = []RedactPattern{{Name: "broken", Pattern: "("}} },
			"logging.redact_patterns[0].pattern",
		},
		{
			"duplicate redact pattern",
			func(c *Config) {
				c.Logging.RedactPatterns = []RedactPattern{{Name: "a", Pattern: "x"}, {Name: "a", Pattern: "y"}}
			},
			"logging.redact_patterns[1].name",
		},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"metrics address", func(c *Config) { c.Metrics.Address = "not an address" }, "metrics.address"},
		{"metrics enabled without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, "metrics.address"},
		{"negative bucket", func(c *Config) { c.Metrics.DurationBuckets = []float64{-1} }, "metrics.duration_buckets[0]"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "tracing.exporter"},
		{"tracing without exporter", func(c *Config) { c.Tracing.Enabled = true }, "tracing.exporter"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
		{"bad backend", func(c *Config) { c.Evidence.Backend = "postgres" }, "evidence.backend"},
		{
			"sqlite without path",
			func(c *Config) { c.Evidence.Enabled = true; c.Evidence.SQLite.Path = "" },
			"evidence.sqlite.path",
		},
		{"idle above open", func(c *Config) { c.Evidence.SQLite.MaxIdleConns = 20 }, "evidence.sqlite.max_idle_conns"},
		{"async buffer", func(c *Config) { c.Evidence.Recorder.AsyncBuffer = 0 }, "evidence.recorder.async_buffer"},
		{
			"archive without path",
			func(c *Config) {
				c.Evidence.Retention.ArchiveBeforeDelete = true
				c.Evidence.Retention.ArchivePath = ""
			},
			"evidence.retention.archive_path",
		},
		{"bad schedule", func(c *Config) { c.Evidence.Retention.PruneSchedule = "every day" }, "evidence.retention.prune_schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !verr.Has(tt.field) {
				t.Errorf("Validate() errors = %v, want one for %s", verr.Errors, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.FailMode = "x"
	cfg.Logging.Level = "y"
	cfg.Evidence.Retention.PruneSchedule = "z"

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Fatalf("len(Errors) = %d, want 3: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.HasPrefix(verr.Error(), "3 errors:") {
		t.Errorf("Error() = %q, want a multi-error summary", verr.Error())
	}
}

func TestValidate_SchedulesDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Evidence.Retention.PruneSchedule = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}
