// Package app provides application initialization and dependency wiring.
//
// App is the container that orchestrates all components: it initializes
// tracing, the database pool, Genkit with the configured AI provider, the
// domain stores, the chat pipeline, and the HTTP server.
package app

import (
	genkitai "github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritail/veritail/internal/api"
	"github.com/veritail/veritail/internal/chat"
	"github.com/veritail/veritail/internal/config"
	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/extraction"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *log.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder genkitai.Embedder
	Pool     *pgxpool.Pool

	// Domain components
	Connections *connection.Store
	Knowledge   *knowledge.Store
	Extractions *extraction.Store
	Intake      *extraction.Intake
	Reviewer    *extraction.Engine
	Sessions    *chat.Store
	Answerer    *chat.Answerer

	// HTTP surface
	Server *api.Server

	// Teardown, in reverse initialization order.
	dbCleanup   func()
	otelCleanup func()
}

// Close gracefully shuts down all resources.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// DefaultGatePolicy returns the process-wide fallback gate policy from
// configuration, or nil when fallback gating is disabled.
func DefaultGatePolicy(cfg *config.Config) *connection.Policy {
	if !cfg.GateDefaultsEnabled {
		return nil
	}
	return &connection.Policy{
		MinAnswerConfidence: cfg.GateMinConfidence,
		MinSourceCount:      cfg.GateMinSources,
	}
}
