package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into an OpenTelemetry span.
//
// Each span carries:
//   - Name: event.Msg
//   - Attributes: request and conversation ids plus every Meta field
//   - Status: Error when Meta["error"] is set
//
// Usage:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("vuai"))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as an immediately ended span. When Meta carries
// "duration_ms" the span is backdated to cover that interval.
func (o *OTelEmitter) Emit(event Event) {
	var startOpts []trace.SpanStartOption
	var endOpts []trace.SpanEndOption
	if d, ok := durationMeta(event.Meta); ok {
		end := time.Now()
		startOpts = append(startOpts, trace.WithTimestamp(end.Add(-d)))
		endOpts = append(endOpts, trace.WithTimestamp(end))
	}

	_, span := o.tracer.Start(context.Background(), event.Msg, startOpts...)
	defer span.End(endOpts...)

	span.SetAttributes(
		attribute.String("vuai.request_id", event.RequestID),
		attribute.String("vuai.conversation_id", event.ConversationID),
	)
	o.addMetadataAttributes(span, event.Meta)

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// Flush forces export of pending spans when the global provider supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}

	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// addMetadataAttributes maps Meta onto span attributes. Usage keys are
// renamed into the vuai.llm namespace.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		switch key {
		case "tokens_in":
			attrKey = "vuai.llm.tokens_in"
		case "tokens_out":
			attrKey = "vuai.llm.tokens_out"
		case "cost_usd":
			attrKey = "vuai.llm.cost_usd"
		case "model":
			attrKey = "vuai.llm.model"
		case "provider":
			attrKey = "vuai.llm.provider"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}

func durationMeta(meta map[string]interface{}) (time.Duration, bool) {
	switch v := meta["duration_ms"].(type) {
	case int64:
		return time.Duration(v) * time.Millisecond, true
	case int:
		return time.Duration(v) * time.Millisecond, true
	case float64:
		return time.Duration(v * float64(time.Millisecond)), true
	}
	return 0, false
}
