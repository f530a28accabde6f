package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/vuai/assistant/config"
)

// startupPingTimeout bounds the reachability check made when opening MongoDB.
const startupPingTimeout = 5 * time.Second

// Open creates the Store selected by cfg.Driver.
//
// An unreachable MongoDB server is not an error: the store is returned and
// the failure is logged, matching the driver's lazy connection. SQL stores
// must open and migrate successfully.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "memory":
		return NewMemStore(), nil

	case "sqlite":
		return NewSQLiteStore(cfg.DSN)

	case "mysql":
		return NewMySQLStore(cfg.DSN)

	case "mongo", "":
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, err
		}

		pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			logger.WarnContext(ctx, "MongoDB unreachable, continuing without persistence",
				slog.String("database", cfg.Database),
				slog.Any("error", err),
			)
			return s, nil
		}
		if err := s.EnsureIndexes(pingCtx); err != nil {
			logger.WarnContext(ctx, "failed to ensure MongoDB indexes", slog.Any("error", err))
		}
		logger.InfoContext(ctx, "MongoDB connected", slog.String("database", cfg.Database))
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
