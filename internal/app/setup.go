package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flownode/ragnode/db"
	"github.com/flownode/ragnode/internal/api"
	"github.com/flownode/ragnode/internal/config"
	"github.com/flownode/ragnode/internal/fetch"
	"github.com/flownode/ragnode/internal/gemini"
	"github.com/flownode/ragnode/internal/ingest"
	"github.com/flownode/ragnode/internal/memory"
	"github.com/flownode/ragnode/internal/meta"
	"github.com/flownode/ragnode/internal/parse"
	"github.com/flownode/ragnode/internal/rag"
	"github.com/flownode/ragnode/internal/vector"
)

// Setup creates and initializes the application. On error everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	metaDB, err := provideMetaDB(cfg)
	if err != nil {
		return nil, err
	}
	a.MetaDB = metaDB
	a.Meta = meta.New(metaDB, logger)

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.Index = vector.New(vector.NewPGQuerier(pool), logger)

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:          cfg.GeminiAPIKey,
		GenerationModel: cfg.GenerationModel,
		EmbedderModel:   cfg.EmbedderModel,
		Temperature:     cfg.Temperature,
		MaxTokens:       cfg.MaxTokens,
		Timeout:         providerTimeout(cfg),
	})
	if err != nil {
		return nil, err
	}
	a.Gemini = client

	a.Convs = memory.NewStore()

	// One lock set shared by ingest and reset so destructive writes to
	// the same project never interleave.
	locks := rag.NewProjectLocks()

	a.Pipeline = ingest.New(ingest.Config{
		Fetcher:      fetch.NewClient(nil),
		Parser:       parse.NewPlainText(),
		Embedder:     client,
		Meta:         a.Meta,
		Index:        a.Index,
		Locks:        locks,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Logger:       logger,
	})

	a.Engine = rag.New(rag.Config{
		Embedder:      client,
		Generator:     client,
		Index:         a.Index,
		Meta:          a.Meta,
		Conversations: a.Convs,
		Locks:         locks,
		TopK:          cfg.TopK,
		HistoryTurns:  cfg.HistoryTurns,
		Logger:        logger,
	})

	srvCfg := api.DefaultServerConfig()
	if cfg.RateBurst > 0 {
		srvCfg.RateBurst = cfg.RateBurst
	}
	srvCfg.TrustProxy = cfg.TrustProxy
	a.Server = api.NewServer(a.Pipeline, a.Engine, srvCfg, logger)

	return a, nil
}

// provideMetaDB opens the SQLite metadata store and applies pending
// migrations.
func provideMetaDB(cfg *config.Config) (*sql.DB, error) {
	sqldb, err := meta.Open(cfg.MetaDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}
	if err := db.MigrateMeta(sqldb); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("migrating metadata store: %w", err)
	}
	return sqldb, nil
}

// providePool connects to PostgreSQL, verifies the connection and
// applies pending vector migrations.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := db.MigrateVector(cfg.PostgresURL()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating vector index: %w", err)
	}
	return pool, nil
}
