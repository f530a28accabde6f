package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/vuai/assistant"
	"github.com/dshills/vuai/assistant/auth"
	"github.com/dshills/vuai/assistant/config"
	"github.com/dshills/vuai/assistant/emit"
	"github.com/dshills/vuai/assistant/gateway"
	"github.com/dshills/vuai/assistant/memory"
	"github.com/dshills/vuai/assistant/prompt"
	"github.com/dshills/vuai/assistant/server"
	"github.com/dshills/vuai/assistant/store"
)

// app holds everything the serve command wires together.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store.Store
	gateway  *gateway.Gateway
	corpus   *prompt.Corpus
	auth     *auth.Service
	chat     *assistant.Service
	server   *server.Server
	costs    *assistant.CostTracker
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
	spans    *emit.OTelEmitter
}

// openStore opens the configured store. A store that fails to open is
// replaced by store.Unavailable so the process keeps serving chat.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) store.Store {
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open store, login and admin endpoints will fail",
			slog.String("driver", cfg.Driver),
			slog.Any("error", err),
		)
		return store.NewUnavailable(err)
	}
	return st
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) *app {
	a := &app{cfg: cfg, logger: logger}

	a.store = openStore(ctx, cfg.Store, logger)
	a.corpus = prompt.LoadCorpus(cfg.Knowledge.Dir, cfg.Knowledge.MaterialsPath, logger)
	a.gateway = gateway.Select(ctx, cfg.LLM, logger)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := assistant.NewMetrics(a.registry)

	var emitters []emit.Emitter
	if logger.Enabled(ctx, slog.LevelDebug) {
		emitters = append(emitters, emit.NewLogEmitter(os.Stderr, cfg.Log.Format == "json"))
	}
	if cfg.Tracing.Enabled {
		a.tracer = sdktrace.NewTracerProvider(sdktrace.WithBatcher(emit.NewSlogSpanExporter(logger)))
		otel.SetTracerProvider(a.tracer)
		a.spans = emit.NewOTelEmitter(a.tracer.Tracer(cfg.Tracing.ServiceName))
		emitters = append(emitters, a.spans)
	}
	emitter := emit.NewMultiEmitter(emitters...)

	a.costs = assistant.NewCostTracker(0)

	persona := prompt.Persona{Name: cfg.Persona.Name, Institution: cfg.Persona.Institution}
	a.chat = assistant.NewService(
		prompt.NewComposer(persona, a.corpus),
		a.gateway,
		memory.New(cfg.Memory.Window, cfg.Memory.MaxConversations),
		assistant.WithEmitter(emitter),
		assistant.WithMetrics(metrics),
		assistant.WithCostTracker(a.costs),
		assistant.WithChatLog(a.store),
		assistant.WithLogger(logger),
	)

	a.auth = auth.NewService(a.store, auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL))

	a.server = server.New(a.chat, a.auth, a.store, a.gateway,
		server.WithLogger(logger),
		server.WithEmitter(emitter),
		server.WithMetrics(metrics, a.registry),
		server.WithCostTracker(a.costs),
		server.WithRateLimiter(server.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)),
	)
	return a
}

// close flushes pending spans, then releases the tracer and the store.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.spans != nil {
		errs = append(errs, a.spans.Flush(ctx))
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
