// Package tracing builds OpenTelemetry tracers for the constitution engine.
//
// The engine opens one span per check, constitution.pre_check or
// constitution.post_check, carrying the resulting state, outcome, severity
// and violation count. This package only decides where those spans go:
//
//	t, err := tracing.New(&cfg.Tracing, os.Stderr)
//	defer t.Shutdown(context.Background())
//	eng, err := engine.New(engCfg, engine.WithTracer(t.Tracer()))
//
// Supported exporters are "none" (noop tracer) and "stdout". The global
// otel provider is left untouched.
package tracing
