package emit

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SlogSpanExporter is a span exporter that writes finished spans to a
// slog.Logger at debug level. It lets tracing run without an external
// collector.
type SlogSpanExporter struct {
	logger *slog.Logger
}

var _ sdktrace.SpanExporter = (*SlogSpanExporter)(nil)

// NewSlogSpanExporter creates a SlogSpanExporter. A nil logger uses slog.Default.
func NewSlogSpanExporter(logger *slog.Logger) *SlogSpanExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSpanExporter{logger: logger}
}

// ExportSpans logs each span with its attributes.
func (e *SlogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		attrs := []any{
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.Duration("duration", span.EndTime().Sub(span.StartTime())),
			slog.String("status", span.Status().Code.String()),
		}
		for _, kv := range span.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.DebugContext(ctx, "span "+span.Name(), attrs...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *SlogSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}
