package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogEmitter_Text(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, false)

	emitter.Emit(Event{RequestID: "req-1", ConversationID: "u1", Msg: MsgChatStart, Meta: map[string]interface{}{"role": "student"}})
	emitter.Emit(Event{RequestID: "req-2", ConversationID: "u2", Msg: MsgChatComplete})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != `[chat_start] request=req-1 conversation=u1 meta={"role":"student"}` {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if strings.Contains(lines[1], "meta=") {
		t.Errorf("expected no meta on second line, got %q", lines[1])
	}
}

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{RequestID: "req-1", ConversationID: "u1", Msg: MsgProviderResult, Meta: map[string]interface{}{"outcome": "success"}})

	var decoded map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["msg"] != MsgProviderResult {
		t.Errorf("unexpected msg %v", decoded["msg"])
	}
	if decoded["conversationID"] != "u1" {
		t.Errorf("unexpected conversation %v", decoded["conversationID"])
	}
	meta, ok := decoded["meta"].(map[string]interface{})
	if !ok || meta["outcome"] != "success" {
		t.Errorf("unexpected meta %v", decoded["meta"])
	}
}

func TestLogEmitter_ConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emitter.Emit(Event{ConversationID: "u", Msg: "x"})
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !json.Valid([]byte(line)) {
			t.Fatalf("corrupted line %q", line)
		}
	}
}

func TestBufferedEmitter(t *testing.T) {
	t.Run("isolates conversations", func(t *testing.T) {
		emitter := NewBufferedEmitter(0)
		emitter.Emit(Event{ConversationID: "u1", Msg: "a"})
		emitter.Emit(Event{ConversationID: "u2", Msg: "b"})
		emitter.Emit(Event{ConversationID: "u1", Msg: "c"})

		if got := len(emitter.GetHistory("u1")); got != 2 {
			t.Errorf("expected 2 events for u1, got %d", got)
		}
		if got := len(emitter.GetHistory("u2")); got != 1 {
			t.Errorf("expected 1 event for u2, got %d", got)
		}
		if got := emitter.GetHistory("unknown"); got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", got)
		}
	})

	t.Run("filters by message and request", func(t *testing.T) {
		emitter := NewBufferedEmitter(0)
		emitter.Emit(Event{ConversationID: "u1", RequestID: "r1", Msg: MsgChatStart})
		emitter.Emit(Event{ConversationID: "u1", RequestID: "r1", Msg: MsgChatComplete})
		emitter.Emit(Event{ConversationID: "u1", RequestID: "r2", Msg: MsgChatStart})

		starts := emitter.GetHistoryWithFilter("u1", HistoryFilter{Msg: MsgChatStart})
		if len(starts) != 2 {
			t.Errorf("expected 2 start events, got %d", len(starts))
		}
		r1 := emitter.GetHistoryWithFilter("u1", HistoryFilter{RequestID: "r1", Msg: MsgChatComplete})
		if len(r1) != 1 {
			t.Errorf("expected 1 matching event, got %d", len(r1))
		}
	})

	t.Run("drops oldest beyond capacity", func(t *testing.T) {
		emitter := NewBufferedEmitter(2)
		for _, msg := range []string{"1", "2", "3"} {
			emitter.Emit(Event{ConversationID: "u1", Msg: msg})
		}

		history := emitter.GetHistory("u1")
		if len(history) != 2 || history[0].Msg != "2" || history[1].Msg != "3" {
			t.Errorf("expected [2 3], got %+v", history)
		}
	})

	t.Run("clear", func(t *testing.T) {
		emitter := NewBufferedEmitter(0)
		emitter.Emit(Event{ConversationID: "u1", Msg: "a"})
		emitter.Emit(Event{ConversationID: "u2", Msg: "b"})

		emitter.Clear("u1")
		if len(emitter.GetHistory("u1")) != 0 || len(emitter.GetHistory("u2")) != 1 {
			t.Error("Clear(u1) should only remove u1")
		}
		emitter.Clear("")
		if len(emitter.GetHistory("u2")) != 0 {
			t.Error("Clear(\"\") should remove everything")
		}
	})
}

func TestMultiEmitter(t *testing.T) {
	a := NewBufferedEmitter(0)
	b := NewBufferedEmitter(0)
	multi := NewMultiEmitter(a, nil, b, NewNullEmitter())

	multi.Emit(Event{ConversationID: "u1", Msg: "x"})

	if len(a.GetHistory("u1")) != 1 || len(b.GetHistory("u1")) != 1 {
		t.Error("expected event delivered to every emitter")
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RequestID:      "req-1",
		ConversationID: "u1",
		Msg:            MsgProviderResult,
		Meta: map[string]interface{}{
			"model":       "gemini-1.5-flash",
			"tokens_in":   120,
			"cost_usd":    0.0001,
			"duration_ms": int64(250),
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != MsgProviderResult {
		t.Errorf("unexpected span name %q", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	if attrs["vuai.request_id"] != "req-1" {
		t.Errorf("unexpected request id %v", attrs["vuai.request_id"])
	}
	if attrs["vuai.conversation_id"] != "u1" {
		t.Errorf("unexpected conversation id %v", attrs["vuai.conversation_id"])
	}
	if attrs["vuai.llm.model"] != "gemini-1.5-flash" {
		t.Errorf("unexpected model %v", attrs["vuai.llm.model"])
	}
	if attrs["vuai.llm.tokens_in"] != int64(120) {
		t.Errorf("unexpected tokens_in %v", attrs["vuai.llm.tokens_in"])
	}
	if got := span.EndTime.Sub(span.StartTime).Milliseconds(); got != 250 {
		t.Errorf("expected span to cover 250ms, got %dms", got)
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{ConversationID: "u1", Msg: MsgChatError, Meta: map[string]interface{}{"error": "boom"}})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "boom" {
		t.Errorf("unexpected description %q", spans[0].Status.Description)
	}
}

func TestSlogSpanExporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewSlogSpanExporter(logger)))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	NewOTelEmitter(tp.Tracer("test")).Emit(Event{ConversationID: "u1", Msg: MsgChatComplete})

	out := buf.String()
	if !strings.Contains(out, "span chat_complete") {
		t.Errorf("expected span log line, got %q", out)
	}
	if !strings.Contains(out, "vuai.conversation_id=u1") {
		t.Errorf("expected attributes in log line, got %q", out)
	}
}
