// Package app provides the application struct for dependency management and
// lifecycle control of the code a database fixture is exercised against.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"pgsmoke/config"
	"pgsmoke/internal/observability"
	"pgsmoke/internal/storage"
)

// App represents the application with all its dependencies.
// It reads its datasource only from configuration, so it never knows whether
// a container or a long-lived server is on the other end.
type App struct {
	config  *config.Config
	storage storage.Storage

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the configuration produced by config.Load.
	AppConfig *config.Config

	// Metrics records statement outcomes. Optional.
	Metrics *observability.Metrics
}

// New creates a new App with its storage connected.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if err := cfg.AppConfig.Validate(); err != nil {
		return nil, err
	}

	appCfg := cfg.AppConfig
	app := &App{config: appCfg}

	store, err := storage.New(ctx, storage.Config{
		URL:      appCfg.Datasource.URL,
		Username: appCfg.Datasource.Username,
		Password: appCfg.Datasource.Password,
		MaxConns: appCfg.Datasource.MaxConns,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.storage = store

	app.logStartupInfo()
	return app, nil
}

// Storage returns the connected datasource.
func (a *App) Storage() storage.Storage {
	return a.storage
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.config
}

// Shutdown releases the datasource connection.
// Safe to call multiple times; subsequent calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	var errs []error
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			slog.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) logStartupInfo() {
	ds := a.config.Datasource
	slog.Info("datasource configured",
		"type", a.storage.Type(),
		"url", redactURL(ds.URL),
		"username", ds.Username,
		"max_conns", ds.MaxConns,
	)
}

// redactURL hides any password embedded in raw. Validate has already parsed
// it, so a parse failure here only happens for hand-built configs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
