// Package tracing wraps OpenTelemetry for the persistence engine. A
// TracingService owns the SDK tracer provider; Wrap decorates a storage
// provider with one span per operation and Middleware does the same for
// REST requests.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/storage"
)

const instrumentationName = "persistence-engine"

// TracingService manages OpenTelemetry tracing
type TracingService struct {
	config     config.TracingConfig
	tracer     oteltrace.Tracer
	provider   *sdktrace.TracerProvider
	propagator propagation.TextMapPropagator
}

// NewTracingService creates a tracing service from cfg. When tracing is
// disabled the service hands out no-op spans. opts are applied after the
// configured exporter.
func NewTracingService(cfg config.TracingConfig, logger *logging.Logger, opts ...sdktrace.TracerProviderOption) (*TracingService, error) {
	ts := &TracingService{
		config: cfg,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
	if !cfg.Enabled {
		ts.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
		return ts, nil
	}
	if logger == nil {
		logger = logging.Nop()
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	samplingRatio := cfg.SamplingRatio
	if samplingRatio <= 0 {
		samplingRatio = 1.0
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio))),
	}
	switch cfg.Exporter {
	case "log", "":
		options = append(options, sdktrace.WithBatcher(NewLogExporter(logger)))
	case "none":
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	ts.provider = sdktrace.NewTracerProvider(append(options, opts...)...)
	ts.tracer = ts.provider.Tracer(instrumentationName)
	logger.Log(context.Background(), slog.LevelInfo, logging.CategoryTracing, "Tracing enabled",
		"exporter", cfg.Exporter,
		"sampling_ratio", samplingRatio,
	)
	return ts, nil
}

// Enabled reports whether spans are recorded.
func (ts *TracingService) Enabled() bool {
	return ts != nil && ts.provider != nil
}

// StartSpan starts a new span
func (ts *TracingService) StartSpan(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, name, opts...)
}

// RecordError records an error in the span
func (ts *TracingService) RecordError(span oteltrace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Close flushes pending spans and shuts the provider down.
func (ts *TracingService) Close(ctx context.Context) error {
	if ts.provider != nil {
		return ts.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer
func (ts *TracingService) Tracer() oteltrace.Tracer {
	return ts.tracer
}

// InstrumentStorageOperation creates a span for a provider operation. key
// may be empty for operations that span the whole kind.
func (ts *TracingService) InstrumentStorageOperation(ctx context.Context, kind storage.Kind, operation, key string) (context.Context, oteltrace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("storage.kind", kind.String()),
		attribute.String("storage.operation", operation),
		attribute.String("component", "storage"),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("storage.key", key))
	}
	return ts.StartSpan(ctx, "storage."+operation,
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(attrs...),
	)
}

// EndStorageSpan records result on span and ends it. NotFound is an
// expected outcome and leaves the status unset.
func EndStorageSpan(span oteltrace.Span, result storage.Result) {
	span.SetAttributes(attribute.String("storage.result", result.String()))
	switch result {
	case storage.Success:
		span.SetStatus(codes.Ok, "")
	case storage.NotFound:
	default:
		span.SetStatus(codes.Error, result.String())
	}
	span.End()
}

// InstrumentHTTPRequest creates a server span for an HTTP request
func (ts *TracingService) InstrumentHTTPRequest(ctx context.Context, method, route string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("%s %s", method, route),
		oteltrace.WithSpanKind(oteltrace.SpanKindServer),
		oteltrace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(method),
			semconv.HTTPRoute(route),
			attribute.String("component", "http"),
		),
	)
}
