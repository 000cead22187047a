package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/veritail/veritail/db"
	"github.com/veritail/veritail/internal/ai"
	"github.com/veritail/veritail/internal/api"
	"github.com/veritail/veritail/internal/chat"
	"github.com/veritail/veritail/internal/config"
	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/extraction"
	"github.com/veritail/veritail/internal/feedback"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
	"github.com/veritail/veritail/internal/observability"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	otelShutdown, err := observability.Setup(ctx, cfg.Otel)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelCleanup = func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	g, err := ai.Init(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder, err := ai.Embedder(g, cfg)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder

	a.Connections = connection.NewStore(pool, logger.With("component", "connection"))
	a.Knowledge = knowledge.NewStore(pool, embedder, logger.With("component", "knowledge"))
	a.Extractions = extraction.NewStore(pool, logger.With("component", "extraction"))
	a.Intake = extraction.NewIntake(a.Connections, a.Extractions, logger.With("component", "intake"))
	a.Reviewer = extraction.NewEngine(pool, a.Extractions, a.Connections, a.Knowledge, logger.With("component", "review"))
	a.Sessions = chat.NewStore(pool, logger.With("component", "session"))

	generator := ai.NewGenerator(g, cfg.FullModelName(), logger.With("component", "generator"))
	a.Answerer = chat.NewAnswerer(chat.AnswererConfig{
		Connections:   a.Connections,
		Retriever:     a.Knowledge,
		Sessions:      a.Sessions,
		Generator:     generator,
		Adjuster:      feedback.NewAdjuster(a.Knowledge, logger.With("component", "feedback")),
		DefaultPolicy: DefaultGatePolicy(cfg),
		TopK:          cfg.RetrievalTopK,
		Logger:        logger.With("component", "answerer"),
	})

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger.With("component", "api"),
		Connections: a.Connections,
		Knowledge:   a.Knowledge,
		Extractions: a.Extractions,
		Intake:      a.Intake,
		Reviewer:    a.Reviewer,
		Answerer:    a.Answerer,
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection
// pool. Every pooled connection registers the pgvector codec so embedding
// parameters bind natively.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	cleanup := func() {
		pool.Close()
	}

	return pool, cleanup, nil
}
