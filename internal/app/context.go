package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"slotswap/internal/config"
	"slotswap/internal/db"
	"slotswap/internal/engine"
	"slotswap/internal/migrate"
	"slotswap/internal/repo"
	"slotswap/internal/storage/postgres"
	"slotswap/internal/storage/postgres/migrations"
)

// Runtime is an engine bound to an open, migrated store.
type Runtime struct {
	Engine engine.Engine
	Config *config.Config
	Log    *zap.Logger

	close func()
}

func (r *Runtime) Close() {
	if r != nil && r.close != nil {
		r.close()
	}
}

// Open opens the store named by cfg.Storage, applies pending migrations and
// builds the engine.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, closeFn, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	eng := engine.New(store, engine.Options{
		MaxAttempts:  cfg.Exchange.MaxAttempts,
		RetryBackoff: cfg.Exchange.RetryBackoff,
		Logger:       log.Named("engine"),
	})
	return &Runtime{Engine: eng, Config: cfg, Log: log, close: closeFn}, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (engine.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("store opened", zap.String("driver", config.DriverPostgres))
		return postgres.NewStore(pool), pool.Close, nil
	default:
		conn, err := db.Open(db.Config{Workspace: cfg.Storage.Workspace})
		if err != nil {
			return nil, nil, err
		}
		version, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("store opened",
			zap.String("driver", config.DriverSQLite),
			zap.String("path", db.Path(cfg.Storage.Workspace)),
			zap.Int("schema_version", version),
		)
		return repo.Repo{DB: conn}, func() { conn.Close() }, nil
	}
}
