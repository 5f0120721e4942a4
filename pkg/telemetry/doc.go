// Package telemetry groups the observability layers of the constitution
// engine:
//
//   - logging: slog loggers with PII redaction and context fields
//   - metrics: Prometheus collector for check, reload and sequence events
//   - tracing: OpenTelemetry tracer providers for check spans
//   - health: liveness and readiness endpoints for serve mode
//
// Each subpackage is configured from the matching section of config.Config
// and none of them is required by the engine itself.
package telemetry
