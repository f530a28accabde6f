package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dshills/vuai/assistant/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func conversation(text string) []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: "You are a test assistant."},
		{Role: model.RoleUser, Content: text},
	}
}

func TestGenerate_PrimarySucceeds(t *testing.T) {
	primary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "  hi there  ", Usage: model.Usage{InputTokens: 12, OutputTokens: 3}}}}
	secondary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "unused"}}}

	g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: primary},
		WithSecondary(Candidate{Provider: "google", Model: "gemini-1.5-flash", Chat: secondary}),
		WithLogger(quietLogger()),
	)

	result := g.Generate(context.Background(), conversation("Hello"))

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", result.Outcome)
	}
	if result.Text != "hi there" {
		t.Errorf("expected trimmed text, got %q", result.Text)
	}
	if result.Provider != "openai" || result.Model != "gpt-4o" {
		t.Errorf("unexpected answering candidate %s/%s", result.Provider, result.Model)
	}
	if result.Usage.InputTokens != 12 || result.Usage.OutputTokens != 3 {
		t.Errorf("unexpected usage %+v", result.Usage)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(result.Attempts))
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary should not be called, got %d calls", secondary.CallCount())
	}
}

func TestGenerate_FallbackAttempts(t *testing.T) {
	t.Run("with secondary: exactly two attempts then apology", func(t *testing.T) {
		primary := &model.MockChatModel{Err: errors.New("primary down")}
		secondary := &model.MockChatModel{Err: errors.New("secondary down")}

		g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: primary},
			WithSecondary(Candidate{Provider: "google", Model: "gemini-1.5-flash", Chat: secondary}),
			WithLogger(quietLogger()),
		)

		msgs := conversation("Hello")
		result := g.Generate(context.Background(), msgs)

		if primary.CallCount() != 1 || secondary.CallCount() != 1 {
			t.Fatalf("expected 1 call each, got primary=%d secondary=%d", primary.CallCount(), secondary.CallCount())
		}
		if len(result.Attempts) != 2 {
			t.Fatalf("expected 2 attempts, got %d", len(result.Attempts))
		}
		if result.Attempts[0].Provider != "openai" || result.Attempts[1].Provider != "google" {
			t.Errorf("unexpected attempt order %+v", result.Attempts)
		}
		if result.Outcome != OutcomeFailed || result.Text != Apology {
			t.Errorf("expected failed apology, got %s %q", result.Outcome, result.Text)
		}
		if result.Err == nil || result.Err.Error() != "secondary down" {
			t.Errorf("expected last error, got %v", result.Err)
		}

		// The secondary sees the same conversation as the primary.
		call, _ := secondary.LastCall()
		if len(call.Messages) != len(msgs) || call.Messages[1].Content != "Hello" {
			t.Errorf("secondary received different conversation: %+v", call.Messages)
		}
	})

	t.Run("without secondary: exactly one attempt", func(t *testing.T) {
		primary := &model.MockChatModel{Err: errors.New("primary down")}
		g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: primary}, WithLogger(quietLogger()))

		result := g.Generate(context.Background(), conversation("Hello"))

		if primary.CallCount() != 1 {
			t.Errorf("expected 1 call, got %d", primary.CallCount())
		}
		if len(result.Attempts) != 1 {
			t.Errorf("expected 1 attempt, got %d", len(result.Attempts))
		}
		if result.Outcome != OutcomeFailed || result.Text != Apology {
			t.Errorf("expected failed apology, got %s %q", result.Outcome, result.Text)
		}
	})

	t.Run("secondary answers: degraded", func(t *testing.T) {
		primary := &model.MockChatModel{Err: &model.APIError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}}
		secondary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "from gemini"}}}

		g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: primary},
			WithSecondary(Candidate{Provider: "google", Model: "gemini-1.5-flash", Chat: secondary}),
			WithLogger(quietLogger()),
		)

		result := g.Generate(context.Background(), conversation("Hello"))

		if result.Outcome != OutcomeDegraded {
			t.Fatalf("expected degraded, got %s", result.Outcome)
		}
		if result.Text != "from gemini" || result.Provider != "google" || result.Model != "gemini-1.5-flash" {
			t.Errorf("unexpected result %+v", result)
		}
		if result.Attempts[0].Kind != KindRateLimited {
			t.Errorf("expected rate_limited, got %s", result.Attempts[0].Kind)
		}
		if result.Err != nil {
			t.Errorf("expected no error on degraded success, got %v", result.Err)
		}
	})
}

func TestGenerate_EmptyReplyFallsThrough(t *testing.T) {
	primary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "   "}}}
	secondary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "real answer"}}}

	g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: primary},
		WithSecondary(Candidate{Provider: "google", Model: "gemini-1.5-flash", Chat: secondary}),
		WithLogger(quietLogger()),
	)

	result := g.Generate(context.Background(), conversation("Hello"))

	if result.Outcome != OutcomeDegraded || result.Text != "real answer" {
		t.Errorf("expected degraded real answer, got %s %q", result.Outcome, result.Text)
	}
	if result.Attempts[0].Kind != KindEmpty {
		t.Errorf("expected empty kind, got %s", result.Attempts[0].Kind)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	blocking := &model.MockChatModel{
		ChatFunc: func(ctx context.Context, _ []model.Message) (model.ChatOut, error) {
			<-ctx.Done()
			return model.ChatOut{}, ctx.Err()
		},
	}
	secondary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "fast"}}}

	g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: blocking},
		WithSecondary(Candidate{Provider: "google", Model: "gemini-1.5-flash", Chat: secondary}),
		WithTimeout(20*time.Millisecond),
		WithLogger(quietLogger()),
	)

	start := time.Now()
	result := g.Generate(context.Background(), conversation("Hello"))

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
	if result.Outcome != OutcomeDegraded || result.Text != "fast" {
		t.Errorf("expected degraded fast answer, got %s %q", result.Outcome, result.Text)
	}
	if result.Attempts[0].Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %s", result.Attempts[0].Kind)
	}
}

func TestGenerate_CandidateTimeoutOverridesDefault(t *testing.T) {
	slow := &model.MockChatModel{
		ChatFunc: func(ctx context.Context, _ []model.Message) (model.ChatOut, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return model.ChatOut{Text: "made it"}, nil
			case <-ctx.Done():
				return model.ChatOut{}, ctx.Err()
			}
		},
	}

	g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: slow, Timeout: 5 * time.Second},
		WithTimeout(time.Millisecond),
		WithLogger(quietLogger()),
	)

	result := g.Generate(context.Background(), conversation("Hello"))
	if result.Outcome != OutcomeSuccess {
		t.Errorf("candidate timeout should win over gateway default, got %s (%v)", result.Outcome, result.Err)
	}
}

func TestGenerate_CanceledCallerSkipsSecondary(t *testing.T) {
	primary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "never"}}}
	secondary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "never"}}}

	g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: primary},
		WithSecondary(Candidate{Provider: "google", Model: "gemini-1.5-flash", Chat: secondary}),
		WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := g.Generate(ctx, conversation("Hello"))

	if result.Outcome != OutcomeFailed {
		t.Errorf("expected failed, got %s", result.Outcome)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary should not run for a canceled caller")
	}
	if result.Attempts[0].Kind != KindCanceled {
		t.Errorf("expected canceled kind, got %s", result.Attempts[0].Kind)
	}
}

func TestGenerate_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: &model.MockChatModel{Err: errors.New("boom")}}, WithLogger(logger))
	g.Generate(context.Background(), conversation("Hello"))

	out := buf.String()
	if !strings.Contains(out, "chat backend failed") || !strings.Contains(out, "provider=openai") {
		t.Errorf("expected failure log, got %q", out)
	}
}

func TestCandidateTimeout(t *testing.T) {
	tests := []struct {
		name      string
		candidate time.Duration
		def       time.Duration
		want      time.Duration
	}{
		{"candidate wins", 5 * time.Second, 30 * time.Second, 5 * time.Second},
		{"default used", 0, 30 * time.Second, 30 * time.Second},
		{"none", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := candidateTimeout(Candidate{Timeout: tt.candidate}, tt.def)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		primary := &model.MockChatModel{Responses: []model.ChatOut{{Text: "hi"}}}
		g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: primary})

		if err := g.Probe(context.Background(), time.Second); err != nil {
			t.Fatalf("Probe failed: %v", err)
		}
		call, _ := primary.LastCall()
		if len(call.Messages) != 1 || call.Messages[0].Content != "Hello" {
			t.Errorf("unexpected probe message %+v", call.Messages)
		}
	})

	t.Run("failure names the backend", func(t *testing.T) {
		g := New(Candidate{Provider: "openai", Model: "gpt-4o", Chat: &model.MockChatModel{Err: errors.New("unreachable")}})

		err := g.Probe(context.Background(), 0)
		if err == nil || !strings.Contains(err.Error(), "openai/gpt-4o") {
			t.Errorf("expected error naming backend, got %v", err)
		}
	})

	t.Run("no candidate", func(t *testing.T) {
		g := New(Candidate{})
		if err := g.Probe(context.Background(), time.Second); !errors.Is(err, ErrNoCandidates) {
			t.Errorf("expected ErrNoCandidates, got %v", err)
		}
	})
}

func TestOutcomeString(t *testing.T) {
	if OutcomeSuccess.String() != "success" || OutcomeDegraded.String() != "degraded" || OutcomeFailed.String() != "failed" {
		t.Error("unexpected outcome names")
	}
	if Outcome(9).String() != "outcome(9)" {
		t.Errorf("unexpected unknown outcome %q", Outcome(9).String())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", errors.Join(errors.New("call"), context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"empty", errEmptyReply, KindEmpty},
		{"429", &model.APIError{Provider: "openai", StatusCode: 429, Err: errors.New("x")}, KindRateLimited},
		{"401", &model.APIError{Provider: "openai", StatusCode: 401, Err: errors.New("x")}, KindAuth},
		{"403", &model.APIError{Provider: "google", StatusCode: 403, Err: errors.New("x")}, KindAuth},
		{"503", &model.APIError{Provider: "anthropic", StatusCode: 503, Err: errors.New("x")}, KindServer},
		{"quota message", &model.APIError{Provider: "openai", StatusCode: 429, Err: errors.New("insufficient_quota")}, KindQuota},
		{"network", errors.New("dial tcp: connection refused"), KindNetwork},
		{"rate limit message", errors.New("Rate limit reached"), KindRateLimited},
		{"other", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
