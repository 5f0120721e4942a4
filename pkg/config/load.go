package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONSTITUTION_"

// LoadConfig loads configuration from a YAML file on top of the defaults
// and validates it. Environment variables are not consulted.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file, applies
// CONSTITUTION_* environment overrides and validates the result. An empty
// path starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := ApplyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration on top of the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	return cfg, nil
}

// envOverride binds one environment variable to a configuration field.
type envOverride struct {
	key   string
	apply func(cfg *Config, value string) error
}

func stringVar(key string, field func(*Config) *string) envOverride {
	return envOverride{key: key, apply: func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

func boolVar(key string, field func(*Config) *bool) envOverride {
	return envOverride{key: key, apply: func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}}
}

func intVar(key string, field func(*Config) *int) envOverride {
	return envOverride{key: key, apply: func(cfg *Config, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}}
}

func durationVar(key string, field func(*Config) *time.Duration) envOverride {
	return envOverride{key: key, apply: func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}}
}

func floatVar(key string, field func(*Config) *float64) envOverride {
	return envOverride{key: key, apply: func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}}
}

var envOverrides = []envOverride{
	// Engine
	stringVar("ENGINE_FAIL_MODE", func(c *Config) *string { return &c.Engine.FailMode }),
	durationVar("ENGINE_RULE_TIMEOUT", func(c *Config) *time.Duration { return &c.Engine.RuleTimeout }),
	durationVar("ENGINE_TOKEN_TTL", func(c *Config) *time.Duration { return &c.Engine.TokenTTL }),
	stringVar("ENGINE_REDACTION_PLACEHOLDER", func(c *Config) *string { return &c.Engine.RedactionPlaceholder }),
	intVar("ENGINE_MAX_REDACTION_PASSES", func(c *Config) *int { return &c.Engine.MaxRedactionPasses }),
	stringVar("ENGINE_DEFAULT_LOCALE", func(c *Config) *string { return &c.Engine.DefaultLocale }),
	stringVar("ENGINE_FAILURE_MESSAGE", func(c *Config) *string { return &c.Engine.FailureMessage }),

	// Document
	stringVar("DOCUMENT_PATH", func(c *Config) *string { return &c.Document.Path }),
	boolVar("DOCUMENT_ALLOW_LEGACY", func(c *Config) *bool { return &c.Document.AllowLegacy }),
	intVar("DOCUMENT_MAX_RULES", func(c *Config) *int { return &c.Document.MaxRules }),
	boolVar("DOCUMENT_WATCH", func(c *Config) *bool { return &c.Document.Watch }),
	durationVar("DOCUMENT_DEBOUNCE_INTERVAL", func(c *Config) *time.Duration { return &c.Document.DebounceInterval }),
	boolVar("DOCUMENT_GIT_ENABLED", func(c *Config) *bool { return &c.Document.Git.Enabled }),
	stringVar("DOCUMENT_GIT_REPOSITORY", func(c *Config) *string { return &c.Document.Git.Repository }),
	stringVar("DOCUMENT_GIT_BRANCH", func(c *Config) *string { return &c.Document.Git.Branch }),
	stringVar("DOCUMENT_GIT_FILE", func(c *Config) *string { return &c.Document.Git.File }),
	stringVar("DOCUMENT_GIT_AUTH_TOKEN", func(c *Config) *string { return &c.Document.Git.Auth.Token }),
	durationVar("DOCUMENT_GIT_POLL_INTERVAL", func(c *Config) *time.Duration { return &c.Document.Git.Poll.Interval }),

	// Logging
	stringVar("LOGGING_LEVEL", func(c *Config) *string { return &c.Logging.Level }),
	stringVar("LOGGING_FORMAT", func(c *Config) *string { return &c.Logging.Format }),
	boolVar("LOGGING_ADD_SOURCE", func(c *Config) *bool { return &c.Logging.AddSource }),
	boolVar("LOGGING_REDACT_PII", func(c *Config) *bool { return &c.Logging.RedactPII }),

	// Metrics
	boolVar("METRICS_ENABLED", func(c *Config) *bool { return &c.Metrics.Enabled }),
	stringVar("METRICS_ADDRESS", func(c *Config) *string { return &c.Metrics.Address }),
	stringVar("METRICS_PATH", func(c *Config) *string { return &c.Metrics.Path }),
	stringVar("METRICS_NAMESPACE", func(c *Config) *string { return &c.Metrics.Namespace }),

	// Tracing
	boolVar("TRACING_ENABLED", func(c *Config) *bool { return &c.Tracing.Enabled }),
	stringVar("TRACING_EXPORTER", func(c *Config) *string { return &c.Tracing.Exporter }),
	stringVar("TRACING_SERVICE_NAME", func(c *Config) *string { return &c.Tracing.ServiceName }),
	floatVar("TRACING_SAMPLE_RATIO", func(c *Config) *float64 { return &c.Tracing.SampleRatio }),

	// Evidence
	boolVar("EVIDENCE_ENABLED", func(c *Config) *bool { return &c.Evidence.Enabled }),
	stringVar("EVIDENCE_BACKEND", func(c *Config) *string { return &c.Evidence.Backend }),
	stringVar("EVIDENCE_SQLITE_PATH", func(c *Config) *string { return &c.Evidence.SQLite.Path }),
	durationVar("EVIDENCE_SQLITE_BUSY_TIMEOUT", func(c *Config) *time.Duration { return &c.Evidence.SQLite.BusyTimeout }),
	intVar("EVIDENCE_RECORDER_ASYNC_BUFFER", func(c *Config) *int { return &c.Evidence.Recorder.AsyncBuffer }),
	intVar("EVIDENCE_RECORDER_PREVIEW_LENGTH", func(c *Config) *int { return &c.Evidence.Recorder.PreviewLength }),
	intVar("EVIDENCE_RETENTION_DAYS", func(c *Config) *int { return &c.Evidence.Retention.Days }),
	stringVar("EVIDENCE_RETENTION_PRUNE_SCHEDULE", func(c *Config) *string { return &c.Evidence.Retention.PruneSchedule }),
	stringVar("EVIDENCE_RETENTION_ARCHIVE_PATH", func(c *Config) *string { return &c.Evidence.Retention.ArchivePath }),

	// Secrets
	stringVar("SECRETS_DIR", func(c *Config) *string { return &c.Secrets.Dir }),
	durationVar("SECRETS_CACHE_TTL", func(c *Config) *time.Duration { return &c.Secrets.CacheTTL }),
}

// ApplyEnvOverrides applies CONSTITUTION_* variables found by lookup to cfg.
// Every unparseable value is reported in the returned ValidationError.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []FieldError

	for _, o := range envOverrides {
		val, ok := lookup(EnvPrefix + o.key)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			errs = append(errs, FieldError{
				Field:   EnvPrefix + o.key,
				Message: fmt.Sprintf("invalid value %q: %v", val, err),
			})
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
