package config

import "time"

// Config is the root configuration structure.
type Config struct {
	// Engine controls evaluation, fail mode and the token ledger.
	Engine EngineConfig `yaml:"engine"`

	// Document locates the constitution and controls how it is parsed and
	// reloaded.
	Document DocumentConfig `yaml:"document"`

	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Evidence EvidenceConfig `yaml:"evidence"`

	// Secrets resolves ${secret:name} references in credentials.
	Secrets SecretsConfig `yaml:"secrets"`
}

// EngineConfig contains constitution engine settings.
type EngineConfig struct {
	// FailMode is "fail-closed" or "fail-open".
	// Default: "fail-closed"
	FailMode string `yaml:"fail_mode" validate:"oneof=fail-closed fail-open"`

	// RuleTimeout bounds a single custom predicate evaluation.
	// Default: 50ms
	RuleTimeout time.Duration `yaml:"rule_timeout" validate:"gt=0"`

	// TokenTTL is how long a pre-check token remains valid.
	// Default: 10m
	TokenTTL time.Duration `yaml:"token_ttl" validate:"gt=0"`

	// RedactionPlaceholder replaces every redacted span.
	// Default: "[REDACTED]"
	RedactionPlaceholder string `yaml:"redaction_placeholder" validate:"required"`

	// MaxRedactionPasses bounds the redact-then-rescan loop.
	// Default: 3
	MaxRedactionPasses int `yaml:"max_redaction_passes" validate:"min=1,max=10"`

	// DefaultLocale reads numbers and dates when a request has no locale.
	// Default: "en"
	DefaultLocale string `yaml:"default_locale" validate:"required"`

	// FailureMessage is shown when a check fails closed.
	FailureMessage string `yaml:"failure_message" validate:"required"`
}

// DocumentConfig contains constitution document settings.
type DocumentConfig struct {
	// Path is the constitution file.
	Path string `yaml:"path"`

	// AllowLegacy accepts the free-text format.
	// Default: false
	AllowLegacy bool `yaml:"allow_legacy"`

	// MaxRules caps the number of rules. Zero disables the cap.
	// Default: 1000
	MaxRules int `yaml:"max_rules" validate:"min=0"`

	// Watch reloads the document when the file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces bursts of file events.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval" validate:"min=0"`

	// Git loads the document from a repository instead of Path.
	Git GitConfig `yaml:"git"`
}

// GitConfig configures loading the constitution from a Git repository.
type GitConfig struct {
	// Enabled switches the document source to Git.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Repository URL (HTTPS, SSH or a local path).
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// File is the constitution path inside the repository.
	// Default: "constitution.yaml"
	File string `yaml:"file"`

	Auth  GitAuthConfig  `yaml:"auth"`
	Poll  GitPollConfig  `yaml:"poll"`
	Clone GitCloneConfig `yaml:"clone"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type is "token", "ssh" or "none".
	// Default: "none"
	Type string `yaml:"type" validate:"omitempty,oneof=token ssh none"`

	// Token for HTTPS authentication.
	Token string `yaml:"token"`

	// SSHKeyPath is a private key file. Required when Type is "ssh".
	SSHKeyPath string `yaml:"ssh_key_path"`

	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitPollConfig configures change detection.
type GitPollConfig struct {
	// Enabled polls the remote for new commits.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Interval between polls.
	// Default: 30s
	Interval time.Duration `yaml:"interval" validate:"gt=0"`

	// Timeout bounds each clone or pull.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// GitCloneConfig configures the local checkout.
type GitCloneConfig struct {
	// Depth for shallow clones. Zero clones full history.
	// Default: 1
	Depth int `yaml:"depth" validate:"min=0"`

	// LocalPath is where the repository is cloned.
	// Default: system temp directory
	LocalPath string `yaml:"local_path"`

	// CleanOnStart removes the checkout before cloning.
	CleanOnStart bool `yaml:"clean_on_start"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format" validate:"oneof=json text"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactPII masks personal data in every log attribute.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns are additional redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns" validate:"dive"`
}

// RedactPattern defines a custom log redaction pattern.
type RedactPattern struct {
	Name        string `yaml:"name" validate:"required"`
	Pattern     string `yaml:"pattern" validate:"required"`
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint in serve mode.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Address is the listen address of the metrics endpoint.
	// Default: "127.0.0.1:9464"
	Address string `yaml:"address" validate:"omitempty,hostname_port"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path" validate:"omitempty,startswith=/"`

	// Namespace prefixes every metric name.
	// Default: "constitution"
	Namespace string `yaml:"namespace" validate:"required"`

	// DurationBuckets are the check latency histogram buckets in seconds.
	DurationBuckets []float64 `yaml:"duration_buckets" validate:"dive,gt=0"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter is "none" or "stdout".
	// Default: "none"
	Exporter string `yaml:"exporter" validate:"oneof=none stdout"`

	// ServiceName is reported as service.name.
	// Default: "constitution"
	ServiceName string `yaml:"service_name" validate:"required"`

	// SampleRatio is the fraction of root spans sampled.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" validate:"min=0,max=1"`
}

// EvidenceConfig contains audit evidence settings.
type EvidenceConfig struct {
	// Enabled records every decision.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend is "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend" validate:"oneof=memory sqlite"`

	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite storage settings.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	// Default: "data/evidence.db"
	Path string `yaml:"path"`

	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns" validate:"min=1"`

	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns" validate:"min=0"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"min=0"`
}

// RecorderConfig contains decision recorder settings.
type RecorderConfig struct {
	// AsyncBuffer is the size of the write queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer" validate:"min=1"`

	// WriteTimeout bounds each storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`

	// HashPayload stores a SHA-256 of the evaluated payload.
	// Default: true
	HashPayload bool `yaml:"hash_payload"`

	// PreviewLength is the stored preview length. Zero disables previews.
	// Default: 200
	PreviewLength int `yaml:"preview_length" validate:"min=0"`
}

// RetentionConfig contains evidence retention settings.
type RetentionConfig struct {
	// Days is the retention period. Zero keeps records forever.
	// Default: 90
	Days int `yaml:"days" validate:"min=0"`

	// PruneSchedule is a standard cron expression. Empty disables
	// scheduled pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete writes pruned records to ArchivePath.
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`

	// MaxRecords caps the number of stored records. Zero is unlimited.
	MaxRecords int64 `yaml:"max_records" validate:"min=0"`
}

// SecretsConfig locates the values behind ${secret:name} references.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name, so
	// "git-token" is read from CONSTITUTION_SECRET_GIT_TOKEN.
	// Default: "CONSTITUTION_SECRET_"
	EnvPrefix string `yaml:"env_prefix" validate:"required"`

	// Dir holds one file per secret, as mounted by Kubernetes. Files must
	// not be readable by group or others. Empty disables file secrets.
	Dir string `yaml:"dir"`

	// CacheTTL is how long a resolved secret is reused. Zero disables
	// caching.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"min=0"`
}
