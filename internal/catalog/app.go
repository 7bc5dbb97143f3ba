// ABOUTME: Explicit construction and teardown of the catalog and its dependencies
// ABOUTME: Replaces process-wide singletons with one owned object graph

package catalog

import (
	"fmt"
	"log/slog"

	"github.com/2389/bugbook/internal/config"
	"github.com/2389/bugbook/internal/credentials"
	"github.com/2389/bugbook/internal/live"
	"github.com/2389/bugbook/internal/session"
	"github.com/2389/bugbook/internal/store"
	"github.com/2389/bugbook/internal/workers"
)

// App owns the storage, query engine and worker pool behind a Service.
type App struct {
	*Service

	store  *store.SQLiteStore
	engine *live.Engine
	pool   *workers.Pool
	logger *slog.Logger
}

// Open builds the full dependency graph from cfg. Close must be called to
// release it.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	engine := live.NewEngine(logger)
	st, err := store.NewSQLiteStore(cfg.Database.Path,
		store.WithNotifier(engine),
		store.WithLogger(logger),
	)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	pool := workers.NewPool(cfg.Workers.PoolSize, logger)

	svc := New(Deps{
		Store:     st,
		Engine:    engine,
		Hasher:    credentials.NewHasher(cfg.Credentials.BcryptCost),
		Session:   session.NewFileStore(cfg.Session.Path),
		Pool:      pool,
		Logger:    logger,
		ViewGrace: cfg.Views.SuspendGrace,
	})

	logger.Debug("catalog opened", "pool_size", pool.Size())
	return &App{
		Service: svc,
		store:   st,
		engine:  engine,
		pool:    pool,
		logger:  logger,
	}, nil
}

// Close ends all live queries, waits for running operations and closes the
// database.
func (a *App) Close() error {
	a.engine.Close()
	a.pool.Close()
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
