// Package tracing wires the Agent Turn Engine's LLM and tool calls into
// OpenTelemetry spans (SPEC_FULL.md domain stack: "otel (+sdk,trace) for
// internal/tracing"). Grounded on hector's pkg/observability/tracer.go
// (InitGlobalTracer's exporter/resource/sampler wiring, the Enabled-false →
// noop.TracerProvider short-circuit) rather than the teacher's, whose
// internal/tracing package is built on a bespoke PostgreSQL span-collector
// (store.SpanData, tracing.Collector) that was filtered out of the
// retrieval pack; spans here are created directly against the otel API
// instead of being buffered into that Collector abstraction.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/arialabs/aria/internal/config"
)

// Shutdown flushes and stops a TracerProvider built by Init. A no-op
// TracerProvider's Shutdown is a no-op itself, so callers never need to
// branch on whether tracing was actually enabled.
type Shutdown func(context.Context) error

// Init builds the process-wide TracerProvider from cfg and installs it via
// otel.SetTracerProvider, matching hector's InitGlobalTracer. When cfg is
// disabled, it installs (and returns) a noop.TracerProvider so every
// downstream otel.Tracer(...).Start call stays cheap and side-effect-free.
func Init(ctx context.Context, cfg config.TelemetryConfig) (trace.TracerProvider, Shutdown, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: build OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "aria"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// Tracer returns a named tracer off the globally installed TracerProvider,
// matching hector's GetTracer helper. Safe to call before Init — the
// default global provider is itself a no-op until Init runs.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
