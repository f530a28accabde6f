package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/vuai/assistant/config"
	"github.com/dshills/vuai/assistant/model"
	"github.com/dshills/vuai/assistant/model/anthropic"
	"github.com/dshills/vuai/assistant/model/google"
	"github.com/dshills/vuai/assistant/model/offline"
	"github.com/dshills/vuai/assistant/model/openai"
)

// Canonical provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderSambaNova = "sambanova"
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
	ProviderOffline   = offline.ProviderName
)

// ollamaAPIKey is sent to local servers that ignore authentication.
const ollamaAPIKey = "ollama"

var providerAliases = map[string]string{
	"openai":     ProviderOpenAI,
	"gpt":        ProviderOpenAI,
	"gpt4":       ProviderOpenAI,
	"gpt-4":      ProviderOpenAI,
	"ollama":     ProviderOllama,
	"local":      ProviderOllama,
	"llama":      ProviderOllama,
	"llama3":     ProviderOllama,
	"sambanova":  ProviderSambaNova,
	"samba":      ProviderSambaNova,
	"google":     ProviderGoogle,
	"gemini":     ProviderGoogle,
	"google_gen": ProviderGoogle,
	"gemini-pro": ProviderGoogle,
	"anthropic":  ProviderAnthropic,
	"claude":     ProviderAnthropic,
	"mock":       ProviderOffline,
	"dev":        ProviderOffline,
	"test":       ProviderOffline,
}

// NormalizeProvider maps a configured provider name or alias to its
// canonical form. Unknown names report false.
func NormalizeProvider(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return ProviderGoogle, true
	}
	canonical, ok := providerAliases[key]
	return canonical, ok
}

// Select builds the process-wide Gateway from configuration.
//
// Select never fails. When the configured backend cannot be initialized the
// cause is logged and the offline backend is used instead. A Gemini
// secondary is added when a Google credential exists and the primary is not
// already the fallback model.
func Select(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	if provider, _ := NormalizeProvider(cfg.Provider); provider == ProviderOffline {
		logger.InfoContext(ctx, "offline mode selected")
		return NewOffline(WithLogger(logger), WithTimeout(cfg.Timeout))
	}

	primary, err := buildPrimary(cfg)
	if err != nil {
		logger.WarnContext(ctx, "chat backend unavailable, using offline mode",
			slog.String("provider", cfg.Provider),
			slog.Any("error", err),
		)
		return NewOffline(WithLogger(logger), WithTimeout(cfg.Timeout))
	}

	opts := []Option{WithLogger(logger), WithTimeout(cfg.Timeout)}
	if secondary, ok := buildSecondary(cfg, primary); ok {
		opts = append(opts, WithSecondary(secondary))
	}

	logger.InfoContext(ctx, "chat backend selected",
		slog.String("provider", primary.Provider),
		slog.String("model", primary.Model),
	)
	return New(primary, opts...)
}

// NewOffline returns a Gateway whose only candidate is the offline backend.
func NewOffline(opts ...Option) *Gateway {
	primary := Candidate{Provider: ProviderOffline, Model: ProviderOffline, Chat: offline.NewChatModel()}
	opts = append(opts, WithStatus(ProviderOffline, ProviderOffline, true))
	return New(primary, opts...)
}

func buildPrimary(cfg config.LLMConfig) (Candidate, error) {
	provider, ok := NormalizeProvider(cfg.Provider)
	if !ok {
		return Candidate{}, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	var (
		chat      model.ChatModel
		modelName string
		err       error
	)

	switch provider {
	case ProviderOpenAI:
		var m *openai.ChatModel
		m, err = openai.NewChatModel(openai.Config{
			APIKey:   cfg.OpenAI.APIKey,
			Model:    cfg.OpenAI.Model,
			BaseURL:  cfg.OpenAI.BaseURL,
			Provider: ProviderOpenAI,
		})
		if err == nil {
			chat, modelName = m, m.ModelName()
		}
	case ProviderOllama:
		var m *openai.ChatModel
		m, err = openai.NewChatModel(openai.Config{
			APIKey:   ollamaAPIKey,
			Model:    cfg.Ollama.Model,
			BaseURL:  cfg.Ollama.BaseURL,
			Provider: ProviderOllama,
		})
		if err == nil {
			chat, modelName = m, m.ModelName()
		}
	case ProviderSambaNova:
		var m *openai.ChatModel
		m, err = openai.NewChatModel(openai.Config{
			APIKey:   cfg.SambaNova.APIKey,
			Model:    cfg.SambaNova.Model,
			BaseURL:  cfg.SambaNova.BaseURL,
			Provider: ProviderSambaNova,
		})
		if err == nil {
			chat, modelName = m, m.ModelName()
		}
	case ProviderGoogle:
		var m *google.ChatModel
		m, err = google.NewChatModel(cfg.Google.APIKey, cfg.Google.Model)
		if err == nil {
			chat, modelName = m, m.ModelName()
		}
	case ProviderAnthropic:
		var m *anthropic.ChatModel
		m, err = anthropic.NewChatModel(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		if err == nil {
			chat, modelName = m, m.ModelName()
		}
	default:
		return Candidate{}, fmt.Errorf("provider %q has no remote backend", provider)
	}

	if err != nil {
		return Candidate{}, fmt.Errorf("%s: %w", provider, err)
	}
	return Candidate{Provider: provider, Model: modelName, Chat: chat}, nil
}

func buildSecondary(cfg config.LLMConfig, primary Candidate) (Candidate, bool) {
	fallback := cfg.FallbackModel
	if fallback == "" {
		fallback = google.DefaultModel
	}
	if primary.Model == fallback {
		return Candidate{}, false
	}

	m, err := google.NewChatModel(cfg.Google.APIKey, fallback)
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{Provider: ProviderGoogle, Model: fallback, Chat: m}, true
}
