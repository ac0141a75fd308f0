// Package app assembles the Parley server from its parts: persistence,
// archive backend, provider dispatcher, metrics and the HTTP surface.
package app

import (
	"context"
	"fmt"

	"github.com/parleychat/parley/internal/api"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/llm"
	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/storage/archive"
	"github.com/parleychat/parley/internal/store"
	"go.uber.org/zap"
)

// App owns the wired components and their shutdown order.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store    store.Store
	server   *api.Server
	registry *metrics.Registry
}

// New wires an App from configuration. The config must already be
// validated.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	backend, err := archive.New(cfg.Archive)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	exporter := archive.NewExporter(st, backend)

	registry := metrics.NewRegistry()
	dispatcher := llm.NewDispatcher(cfg, logger)
	server := api.NewServer(cfg, dispatcher, st, exporter, registry, logger)

	logger.Info("application wired",
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Type),
		zap.String("default_provider", string(cfg.DefaultProvider())),
	)

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		server:   server,
		registry: registry,
	}, nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Server exposes the HTTP server for the serve command and tests.
func (a *App) Server() *api.Server {
	return a.server
}

// Store exposes the persistence layer, mostly for tests.
func (a *App) Store() store.Store {
	return a.store
}

// Start runs the HTTP server and blocks until it stops.
func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops the server then releases the store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
