package config

import "time"

// Default values for configuration fields.
const (
	DefaultFailMode             = "fail-closed"
	DefaultRuleTimeout          = 50 * time.Millisecond
	DefaultTokenTTL             = 10 * time.Minute
	DefaultRedactionPlaceholder = "[REDACTED]"
	DefaultMaxRedactionPasses   = 3
	DefaultLocale               = "en"
	DefaultFailureMessage       = "This request cannot be processed right now."

	DefaultMaxRules         = 1000
	DefaultDebounceInterval = 100 * time.Millisecond

	DefaultGitBranch       = "main"
	DefaultGitFile         = "constitution.yaml"
	DefaultGitAuthType     = "none"
	DefaultGitPollInterval = 30 * time.Second
	DefaultGitPollTimeout  = 10 * time.Second
	DefaultGitCloneDepth   = 1

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsAddress   = "127.0.0.1:9464"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "constitution"

	DefaultTracingExporter    = "none"
	DefaultTracingServiceName = "constitution"
	DefaultTracingSampleRatio = 1.0

	DefaultEvidenceBackend        = "sqlite"
	DefaultSQLitePath             = "data/evidence.db"
	DefaultSQLiteMaxOpenConns     = 10
	DefaultSQLiteMaxIdleConns     = 5
	DefaultSQLiteBusyTimeout      = 5 * time.Second
	DefaultRecorderAsyncBuffer    = 1000
	DefaultRecorderWriteTimeout   = 5 * time.Second
	DefaultRecorderPreviewLength  = 200
	DefaultRetentionDays          = 90
	DefaultRetentionPruneSchedule = "0 3 * * *"
	DefaultRetentionArchivePath   = "data/archives/"

	DefaultSecretsEnvPrefix = "CONSTITUTION_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute
)

// DefaultDurationBuckets are check latency buckets in seconds. Checks are
// expected to finish well under the default rule timeout.
var DefaultDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			FailMode:             DefaultFailMode,
			RuleTimeout:          DefaultRuleTimeout,
			TokenTTL:             DefaultTokenTTL,
			RedactionPlaceholder: DefaultRedactionPlaceholder,
			MaxRedactionPasses:   DefaultMaxRedactionPasses,
			DefaultLocale:        DefaultLocale,
			FailureMessage:       DefaultFailureMessage,
		},
		Document: DocumentConfig{
			MaxRules:         DefaultMaxRules,
			DebounceInterval: DefaultDebounceInterval,
			Git: GitConfig{
				Branch: DefaultGitBranch,
				File:   DefaultGitFile,
				Auth:   GitAuthConfig{Type: DefaultGitAuthType},
				Poll: GitPollConfig{
					Enabled:  true,
					Interval: DefaultGitPollInterval,
					Timeout:  DefaultGitPollTimeout,
				},
				Clone: GitCloneConfig{Depth: DefaultGitCloneDepth},
			},
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			RedactPII: true,
		},
		Metrics: MetricsConfig{
			Address:         DefaultMetricsAddress,
			Path:            DefaultMetricsPath,
			Namespace:       DefaultMetricsNamespace,
			DurationBuckets: append([]float64(nil), DefaultDurationBuckets...),
		},
		Tracing: TracingConfig{
			Exporter:    DefaultTracingExporter,
			ServiceName: DefaultTracingServiceName,
			SampleRatio: DefaultTracingSampleRatio,
		},
		Evidence: EvidenceConfig{
			Backend: DefaultEvidenceBackend,
			SQLite: SQLiteConfig{
				Path:         DefaultSQLitePath,
				MaxOpenConns: DefaultSQLiteMaxOpenConns,
				MaxIdleConns: DefaultSQLiteMaxIdleConns,
				WALMode:      true,
				BusyTimeout:  DefaultSQLiteBusyTimeout,
			},
			Recorder: RecorderConfig{
				AsyncBuffer:   DefaultRecorderAsyncBuffer,
				WriteTimeout:  DefaultRecorderWriteTimeout,
				HashPayload:   true,
				PreviewLength: DefaultRecorderPreviewLength,
			},
			Retention: RetentionConfig{
				Days:          DefaultRetentionDays,
				PruneSchedule: DefaultRetentionPruneSchedule,
				ArchivePath:   DefaultRetentionArchivePath,
			},
		},
		Secrets: SecretsConfig{
			EnvPrefix: DefaultSecretsEnvPrefix,
			CacheTTL:  DefaultSecretsCacheTTL,
		},
	}
}
