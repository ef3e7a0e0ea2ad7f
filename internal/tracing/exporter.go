package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"persistence-engine/internal/logging"
)

// LogExporter writes finished spans to the structured logger.
type LogExporter struct {
	logger *logging.Logger
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

func NewLogExporter(logger *logging.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

// ExportSpans logs one record per span.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Log(ctx, slog.LevelInfo, logging.CategoryTracing, "Span finished",
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
			"parent_id", span.Parent().SpanID().String(),
			"name", span.Name(),
			"duration", span.EndTime().Sub(span.StartTime()).String(),
			"status", span.Status().Code.String(),
			"attributes", attributesToMap(span.Attributes()),
			"events", eventsToMaps(span.Events()),
		)
	}
	return nil
}

func (e *LogExporter) Shutdown(ctx context.Context) error {
	e.logger.Log(ctx, slog.LevelDebug, logging.CategoryTracing, "Span exporter shutting down")
	return nil
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	result := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		result[string(attr.Key)] = attr.Value.AsInterface()
	}
	return result
}

func eventsToMaps(events []sdktrace.Event) []map[string]any {
	result := make([]map[string]any, len(events))
	for i, event := range events {
		result[i] = map[string]any{
			"name":       event.Name,
			"time":       event.Time,
			"attributes": attributesToMap(event.Attributes),
		}
	}
	return result
}
