// Package google provides a ChatModel adapter for the Google Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/vuai/assistant/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Default generation settings.
const (
	DefaultModel     = "gemini-1.5-flash"
	DefaultMaxTokens = 1024
)

// ChatModel implements model.ChatModel for Gemini models.
//
// The system turn becomes the model's SystemInstruction, earlier turns become
// chat history and the newest user turn is sent as the message.
//
// Example usage:
//
//	m, err := google.NewChatModel(os.Getenv("GOOGLE_API_KEY"), "gemini-1.5-flash")
//	out, err := m.Chat(ctx, messages)
//	if err != nil {
//	    var safetyErr *google.SafetyFilterError
//	    if errors.As(err, &safetyErr) {
//	        log.Printf("content blocked: %s", safetyErr.Reason())
//	    }
//	}
type ChatModel struct {
	modelName string
	client    googleClient
}

type googleClient interface {
	generateContent(ctx context.Context, modelName string, messages []model.Message) (model.ChatOut, error)
}

// NewChatModel creates a ChatModel. Empty modelName uses DefaultModel.
func NewChatModel(apiKey, modelName string) (*ChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	return &ChatModel{
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey},
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	out, err := m.client.generateContent(ctx, m.modelName, messages)
	if err != nil {
		var safetyErr *SafetyFilterError
		if errors.As(err, &safetyErr) {
			return model.ChatOut{}, safetyErr
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return model.ChatOut{}, &model.APIError{Provider: "google", StatusCode: apiErr.Code, Err: err}
		}
		return model.ChatOut{}, fmt.Errorf("google: %w", err)
	}

	return out, nil
}

// defaultClient opens a short-lived Gemini client per call.
type defaultClient struct {
	apiKey string
}

func (c *defaultClient) generateContent(ctx context.Context, modelName string, messages []model.Message) (model.ChatOut, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	systemPrompt, conversation := model.SplitSystem(messages)
	history, last := splitHistory(conversation)

	genModel := client.GenerativeModel(modelName)
	genModel.SetTemperature(0.7)
	genModel.SetMaxOutputTokens(DefaultMaxTokens)
	if systemPrompt != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	session := genModel.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, genai.Text(last))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, &SafetyFilterError{reason: blocked.Error()}
		}
		return model.ChatOut{}, err
	}

	return convertResponse(resp), nil
}

// splitHistory converts every turn but the newest user turn into Gemini
// history. Gemini names the assistant role "model".
func splitHistory(messages []model.Message) ([]*genai.Content, string) {
	if len(messages) == 0 {
		return nil, ""
	}

	lastIdx := len(messages) - 1
	for lastIdx >= 0 && messages[lastIdx].Role != model.RoleUser {
		lastIdx--
	}
	if lastIdx < 0 {
		lastIdx = len(messages) - 1
	}

	history := make([]*genai.Content, 0, lastIdx)
	for _, msg := range messages[:lastIdx] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	return history, messages[lastIdx].Content
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if resp == nil {
		return out
	}

	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(string(t))
		}
	}
	out.Text = strings.TrimSpace(text.String())

	return out
}

// SafetyFilterError reports a response blocked by Gemini's safety filters.
type SafetyFilterError struct {
	reason string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.reason
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}
