// Package config loads service configuration from defaults, an optional
// YAML or TOML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v2"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultSecret is the signing key used when SECRET_KEY is unset. Serving
// with it logs a warning.
const DefaultSecret = "insecure-dev-key-please-change"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Knowledge KnowledgeConfig `yaml:"knowledge" toml:"knowledge"`
	Persona   PersonaConfig   `yaml:"persona" toml:"persona"`
	Memory    MemoryConfig    `yaml:"memory" toml:"memory"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Tracing   TracingConfig   `yaml:"tracing" toml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// RateLimit is the sustained requests per second allowed per client on
	// /chat and /login. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst"`
}

// LLMConfig selects and configures the chat backend.
type LLMConfig struct {
	// Provider accepts the aliases understood by gateway.NormalizeProvider.
	Provider string `yaml:"provider" toml:"provider"`

	OpenAI    ProviderConfig `yaml:"openai" toml:"openai"`
	Ollama    ProviderConfig `yaml:"ollama" toml:"ollama"`
	SambaNova ProviderConfig `yaml:"sambanova" toml:"sambanova"`
	Google    ProviderConfig `yaml:"google" toml:"google"`
	Anthropic ProviderConfig `yaml:"anthropic" toml:"anthropic"`

	// FallbackModel is the Gemini model tried once when the primary fails.
	FallbackModel string `yaml:"fallback_model" toml:"fallback_model"`

	// Timeout bounds each candidate attempt.
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// ProbeTimeout bounds the startup health probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" toml:"probe_timeout"`
}

// ProviderConfig holds one backend's credential and model.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// StoreConfig selects the credential and conversation-log store.
type StoreConfig struct {
	// Driver is one of "mongo", "sqlite", "mysql" or "memory".
	Driver string `yaml:"driver" toml:"driver"`

	// DSN is the SQLite path or MySQL data source name.
	DSN string `yaml:"dsn" toml:"dsn"`

	MongoURI string `yaml:"mongo_uri" toml:"mongo_uri"`
	Database string `yaml:"database" toml:"database"`
}

// AuthConfig configures token signing.
type AuthConfig struct {
	Secret   string        `yaml:"secret" toml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl" toml:"token_ttl"`
}

// KnowledgeConfig locates the knowledge corpus.
type KnowledgeConfig struct {
	Dir           string `yaml:"dir" toml:"dir"`
	MaterialsPath string `yaml:"materials_path" toml:"materials_path"`

	// Watch reloads the corpus when files change. Off by default.
	Watch bool `yaml:"watch" toml:"watch"`
}

// PersonaConfig names the assistant.
type PersonaConfig struct {
	Name        string `yaml:"name" toml:"name"`
	Institution string `yaml:"institution" toml:"institution"`
}

// MemoryConfig bounds the conversation cache.
type MemoryConfig struct {
	Window           int `yaml:"window" toml:"window"`
	MaxConversations int `yaml:"max_conversations" toml:"max_conversations"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TracingConfig enables OpenTelemetry spans for chat events.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RateLimit:       5,
			RateBurst:       20,
		},
		LLM: LLMConfig{
			Provider:      "google",
			OpenAI:        ProviderConfig{Model: "gpt-4o"},
			Ollama:        ProviderConfig{Model: "llama3", BaseURL: "http://localhost:11434/v1"},
			SambaNova:     ProviderConfig{Model: "Meta-Llama-3.1-70B-Instruct", BaseURL: "https://api.sambanova.ai/v1"},
			Google:        ProviderConfig{Model: "gemini-1.5-flash"},
			Anthropic:     ProviderConfig{Model: "claude-3-opus-20240229"},
			FallbackModel: "gemini-1.5-flash",
			Timeout:       30 * time.Second,
			ProbeTimeout:  10 * time.Second,
		},
		Store: StoreConfig{
			Driver:   "mongo",
			DSN:      "vuai.db",
			MongoURI: "mongodb://localhost:27017",
			Database: "vu_ai_agent",
		},
		Auth: AuthConfig{
			Secret:   DefaultSecret,
			TokenTTL: 300 * time.Minute,
		},
		Knowledge: KnowledgeConfig{
			Dir:           "knowledge",
			MaterialsPath: filepath.Join("data", "materials.json"),
		},
		Persona: PersonaConfig{
			Name:        "Vu AI",
			Institution: "Vignan University (VFSTR)",
		},
		Memory: MemoryConfig{
			Window:           6,
			MaxConversations: 10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "vuai",
		},
	}
}

// Load builds a Config. path may be empty; envFile may be empty or missing.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &cfg.Server.Addr)
	if !strings.Contains(cfg.Server.Addr, ":") {
		cfg.Server.Addr = ":" + cfg.Server.Addr
	}

	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey)
	str("OPENAI_MODEL", &cfg.LLM.OpenAI.Model)
	str("OPENAI_BASE_URL", &cfg.LLM.OpenAI.BaseURL)
	str("OLLAMA_MODEL", &cfg.LLM.Ollama.Model)
	str("OLLAMA_BASE_URL", &cfg.LLM.Ollama.BaseURL)
	str("SAMBANOVA_API_KEY", &cfg.LLM.SambaNova.APIKey)
	str("SAMBANOVA_MODEL", &cfg.LLM.SambaNova.Model)
	str("SAMBANOVA_BASE_URL", &cfg.LLM.SambaNova.BaseURL)
	str("GOOGLE_API_KEY", &cfg.LLM.Google.APIKey)
	str("GOOGLE_MODEL", &cfg.LLM.Google.Model)
	str("ANTHROPIC_API_KEY", &cfg.LLM.Anthropic.APIKey)
	str("ANTHROPIC_MODEL", &cfg.LLM.Anthropic.Model)

	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_DSN", &cfg.Store.DSN)
	str("MONGO_URI", &cfg.Store.MongoURI)
	str("MONGO_DATABASE", &cfg.Store.Database)

	str("SECRET_KEY", &cfg.Auth.Secret)

	str("KNOWLEDGE_DIR", &cfg.Knowledge.Dir)
	str("MATERIALS_PATH", &cfg.Knowledge.MaterialsPath)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("KNOWLEDGE_WATCH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KNOWLEDGE_WATCH: %v", ErrInvalidConfig, err)
		}
		cfg.Knowledge.Watch = b
	}
	if v, ok := lookup("TRACING_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: TRACING_ENABLED: %v", ErrInvalidConfig, err)
		}
		cfg.Tracing.Enabled = b
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "mongo", "sqlite", "mysql", "memory":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.Store.Driver == "mysql" && c.Store.DSN == "" {
		return fmt.Errorf("%w: mysql store requires a DSN", ErrInvalidConfig)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("%w: auth secret must not be empty", ErrInvalidConfig)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("%w: llm timeout must be positive", ErrInvalidConfig)
	}
	if c.Memory.Window <= 0 || c.Memory.Window%2 != 0 {
		return fmt.Errorf("%w: memory window must be a positive even number, got %d", ErrInvalidConfig, c.Memory.Window)
	}
	if c.Memory.MaxConversations <= 0 {
		return fmt.Errorf("%w: max conversations must be positive", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// UsesDefaultSecret reports whether tokens are signed with DefaultSecret.
func (c Config) UsesDefaultSecret() bool {
	return c.Auth.Secret == DefaultSecret
}
