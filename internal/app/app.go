// Package app provides application initialization and dependency
// wiring. Setup builds every component from configuration and App
// owns their lifecycle.
package app

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flownode/ragnode/internal/api"
	"github.com/flownode/ragnode/internal/config"
	"github.com/flownode/ragnode/internal/gemini"
	"github.com/flownode/ragnode/internal/ingest"
	"github.com/flownode/ragnode/internal/memory"
	"github.com/flownode/ragnode/internal/meta"
	"github.com/flownode/ragnode/internal/rag"
	"github.com/flownode/ragnode/internal/vector"
)

// App is the application container. Close releases every resource
// Setup acquired.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	MetaDB *sql.DB
	Pool   *pgxpool.Pool

	Gemini   *gemini.Client
	Meta     *meta.Store
	Index    *vector.Index
	Convs    *memory.Store
	Pipeline *ingest.Pipeline
	Engine   *rag.Engine
	Server   *api.Server
}

// Close shuts down the stores in reverse acquisition order.
func (a *App) Close() error {
	var errs []error

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("vector index pool closed")
	}
	if a.MetaDB != nil {
		if err := a.MetaDB.Close(); err != nil {
			errs = append(errs, err)
		} else {
			a.Logger.Info("metadata store closed")
		}
	}
	return errors.Join(errs...)
}

func providerTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.ProviderTimeout) * time.Second
}
