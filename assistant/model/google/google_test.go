package google

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/vuai/assistant/model"
	"github.com/google/generative-ai-go/genai"
)

type mockGoogleClient struct {
	out       model.ChatOut
	err       error
	callCount int
	lastModel string
}

func (m *mockGoogleClient) generateContent(_ context.Context, modelName string, _ []model.Message) (model.ChatOut, error) {
	m.callCount++
	m.lastModel = modelName
	return m.out, m.err
}

func TestNewChatModel(t *testing.T) {
	if _, err := NewChatModel("  ", "gemini-pro"); !errors.Is(err, model.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	m, err := NewChatModel("key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ModelName() != DefaultModel {
		t.Errorf("expected %q, got %q", DefaultModel, m.ModelName())
	}
}

func TestChatModel_Chat(t *testing.T) {
	t.Run("returns text from client", func(t *testing.T) {
		client := &mockGoogleClient{out: model.ChatOut{Text: "Namaste!"}}
		m := &ChatModel{modelName: "gemini-1.5-flash", client: client}

		out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "Hi"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Text != "Namaste!" {
			t.Errorf("expected Namaste!, got %q", out.Text)
		}
		if client.lastModel != "gemini-1.5-flash" {
			t.Errorf("unexpected model %q", client.lastModel)
		}
	})

	t.Run("passes safety errors through", func(t *testing.T) {
		client := &mockGoogleClient{err: &SafetyFilterError{reason: "SAFETY"}}
		m := &ChatModel{modelName: DefaultModel, client: client}

		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}})
		var safetyErr *SafetyFilterError
		if !errors.As(err, &safetyErr) {
			t.Fatalf("expected SafetyFilterError, got %v", err)
		}
		if safetyErr.Reason() != "SAFETY" {
			t.Errorf("expected reason SAFETY, got %q", safetyErr.Reason())
		}
	})
}

func TestSplitHistory(t *testing.T) {
	t.Run("newest user turn is the message", func(t *testing.T) {
		history, last := splitHistory([]model.Message{
			{Role: model.RoleUser, Content: "Hello"},
			{Role: model.RoleAssistant, Content: "Hi there"},
			{Role: model.RoleUser, Content: "What did I just say?"},
		})

		if last != "What did I just say?" {
			t.Errorf("unexpected last message %q", last)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 history entries, got %d", len(history))
		}
		if history[0].Role != "user" || history[1].Role != "model" {
			t.Errorf("unexpected roles %q, %q", history[0].Role, history[1].Role)
		}
	})

	t.Run("empty conversation", func(t *testing.T) {
		history, last := splitHistory(nil)
		if history != nil || last != "" {
			t.Errorf("expected empty result, got %v %q", history, last)
		}
	})
}

func TestConvertResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("line one"), genai.Text("line two")}},
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 40, CandidatesTokenCount: 8},
	}

	out := convertResponse(resp)
	if out.Text != "line one\nline two" {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Usage.InputTokens != 40 || out.Usage.OutputTokens != 8 {
		t.Errorf("unexpected usage %+v", out.Usage)
	}

	if got := convertResponse(&genai.GenerateContentResponse{}); got.Text != "" {
		t.Errorf("expected empty text for no candidates, got %q", got.Text)
	}
}
