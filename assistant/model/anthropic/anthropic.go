// Package anthropic provides a ChatModel backed by Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dshills/vuai/assistant/model"
)

// Default generation settings.
const (
	DefaultModel     = "claude-3-opus-20240229"
	DefaultMaxTokens = 1024
)

// ChatModel implements model.ChatModel for Claude models.
//
// Anthropic takes the system prompt as a separate parameter, so system turns
// are lifted out of the conversation before the call.
//
// Example usage:
//
//	m, err := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-opus-20240229")
//	out, err := m.Chat(ctx, messages)
type ChatModel struct {
	modelName string
	client    messageClient
}

type messageClient interface {
	createMessage(ctx context.Context, modelName, systemPrompt string, messages []model.Message) (model.ChatOut, error)
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
		client: &sdkClient{
			client:    anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
			maxTokens: DefaultMaxTokens,
		},
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

	systemPrompt, conversation := model.SplitSystem(messages)

	out, err := m.client.createMessage(ctx, m.modelName, systemPrompt, conversation)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return model.ChatOut{}, &model.APIError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
		}
		return model.ChatOut{}, fmt.Errorf("anthropic: %w", err)
	}

	return out, nil
}

// sdkClient wraps the official anthropic-sdk-go client.
type sdkClient struct {
	client    anthropic.Client
	maxTokens int64
}

func (c *sdkClient) createMessage(ctx context.Context, modelName, systemPrompt string, messages []model.Message) (model.ChatOut, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: c.maxTokens,
		Messages:  convertMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text: strings.TrimSpace(text.String()),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
