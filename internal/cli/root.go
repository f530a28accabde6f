// Package cli implements the vuai commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/vuai/assistant/config"
)

var (
	configPath string
	envFile    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "vuai",
	Short:         "Vu AI campus assistant backend",
	Long:          "Serves the Vu AI chat, login and admin endpoints backed by a configurable LLM provider.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading variables")
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath, envFile)
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
