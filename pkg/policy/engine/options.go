package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/constitution/pkg/policy/detect"
)

// Observer receives engine events, typically to export metrics.
type Observer interface {
	ObserveDecision(d *Decision)
	ObserveReload(err error, rules int)
	ObserveOutOfSequence(reason SequenceReason)
}

// Recorder persists decisions for audit. Errors are logged and never
// change a decision.
type Recorder interface {
	RecordDecision(ctx context.Context, rec DecisionRecord) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver installs a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithRecorder installs an audit recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithTracer sets the tracer used for check spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithPredicates sets the registry resolving custom predicate ids.
func WithPredicates(r *detect.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.predicates = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
