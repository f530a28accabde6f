// Package openai provides a ChatModel backed by the OpenAI chat completions API.
//
// Any OpenAI-compatible endpoint works through Config.BaseURL, which is how
// the self-hosted Ollama server and the SambaNova cloud are reached.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/vuai/assistant/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Default generation settings.
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Config configures a ChatModel.
type Config struct {
	// APIKey authenticates the request. Local servers that ignore it still
	// need a placeholder value.
	APIKey string

	// Model names the model to call. Empty uses DefaultModel.
	Model string

	// BaseURL overrides the API endpoint, e.g. "http://localhost:11434/v1".
	BaseURL string

	// Provider labels errors. Empty uses "openai".
	Provider string

	Temperature float64
	MaxTokens   int
}

// ChatModel implements model.ChatModel for OpenAI-compatible APIs.
//
// SDK retries are disabled; the gateway decides whether a failed request is
// retried against another candidate.
//
// Example usage:
//
//	m, err := openai.NewChatModel(openai.Config{
//	    APIKey:  "ollama",
//	    Model:   "llama3",
//	    BaseURL: "http://localhost:11434/v1",
//	})
type ChatModel struct {
	modelName string
	provider  string
	client    completionClient
}

// completionClient abstracts the SDK call so tests can substitute it.
type completionClient interface {
	createChatCompletion(ctx context.Context, modelName string, messages []model.Message) (model.ChatOut, error)
}

// NewChatModel creates a ChatModel. It returns model.ErrMissingAPIKey when
// cfg.APIKey is empty.
func NewChatModel(cfg Config) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, model.ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ChatModel{
		modelName: cfg.Model,
		provider:  cfg.Provider,
		client: &sdkClient{
			client:      openai.NewClient(opts...),
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
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

	out, err := m.client.createChatCompletion(ctx, m.modelName, messages)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return model.ChatOut{}, &model.APIError{Provider: m.provider, StatusCode: apiErr.StatusCode, Err: err}
		}
		return model.ChatOut{}, fmt.Errorf("%s: %w", m.provider, err)
	}

	return out, nil
}

// sdkClient wraps the official openai-go client.
type sdkClient struct {
	client      openai.Client
	temperature float64
	maxTokens   int
}

func (c *sdkClient) createChatCompletion(ctx context.Context, modelName string, messages []model.Message) (model.ChatOut, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(modelName),
		Messages:    convertMessages(messages),
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return model.ChatOut{}, err
	}

	if len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("completion returned no choices")
	}

	return model.ChatOut{
		Text: strings.TrimSpace(completion.Choices[0].Message.Content),
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
