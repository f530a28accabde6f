package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long:  "Open the store, load the knowledge corpus, select the chat backend and serve HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UsesDefaultSecret() {
		logger.Warn("auth secret is the built-in default; set SECRET_KEY before exposing this server")
	}

	a := newApp(ctx, cfg, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Warn("shutdown cleanup failed", slog.Any("error", err))
		}
	}()

	startupProbe(ctx, a, logger)

	if cfg.Knowledge.Watch {
		go func() {
			if err := a.corpus.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("knowledge watch stopped", slog.Any("error", err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe(cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// startupProbe logs whether the store and chat backend answer. Failures
// degrade status but never stop the server.
func startupProbe(ctx context.Context, a *app, logger *slog.Logger) {
	report := runChecks(ctx, a.store, a.gateway, a.cfg.LLM.ProbeTimeout)
	for _, c := range report.checks {
		attrs := []any{slog.String("check", c.name), slog.String("detail", c.detail)}
		if c.ok {
			logger.InfoContext(ctx, "startup check passed", attrs...)
		} else {
			logger.WarnContext(ctx, "startup check failed", attrs...)
		}
	}

	if report.ok() {
		logger.InfoContext(ctx, "system status OK",
			slog.String("provider", a.gateway.Provider()),
			slog.String("model", a.gateway.Model()))
		return
	}
	logger.WarnContext(ctx, "system status ISSUES", slog.Bool("offline", a.gateway.Offline()))
}
