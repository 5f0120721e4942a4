package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/constitution/pkg/config"
)

// InstrumentationName names the tracer handed to the engine.
const InstrumentationName = "mercator-hq/constitution"

// Tracer owns a tracer provider and the tracer built from it.
type Tracer struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
}

// New builds a tracer from the tracing configuration. Disabled tracing and
// the "none" exporter yield a noop tracer. The stdout exporter writes to w,
// or os.Stdout when w is nil.
func New(cfg *config.TracingConfig, w io.Writer) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("tracing config is nil")
	}
	if !cfg.Enabled || cfg.Exporter == "none" || cfg.Exporter == "" {
		return newNoop(), nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "stdout":
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	return newSDK(cfg, sdktrace.NewBatchSpanProcessor(exporter)), nil
}

// NewWithProcessor builds an enabled tracer that feeds spans to sp.
func NewWithProcessor(cfg *config.TracingConfig, sp sdktrace.SpanProcessor) *Tracer {
	return newSDK(cfg, sp)
}

func newNoop() *Tracer {
	provider := noop.NewTracerProvider()
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(InstrumentationName),
	}
}

func newSDK(cfg *config.TracingConfig, sp sdktrace.SpanProcessor) *Tracer {
	name := cfg.ServiceName
	if name == "" {
		name = config.DefaultTracingServiceName
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)

	return &Tracer{
		provider: provider,
		sdk:      provider,
		tracer:   provider.Tracer(InstrumentationName),
		enabled:  true,
	}
}

// sampler samples root spans at ratio and follows the parent otherwise.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Tracer returns the tracer for engine.WithTracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// Provider returns the underlying tracer provider.
func (t *Tracer) Provider() trace.TracerProvider {
	return t.provider
}

// Start starts a span on the tracer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	return t.sdk.Shutdown(ctx)
}
