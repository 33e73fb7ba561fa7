// Package app wires the application together: configuration, logging,
// tracing, both catalog stores, the conversation store, the tool kit,
// and the agent itself.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/konecto/actuator-agent/internal/agent"
	"github.com/konecto/actuator-agent/internal/catalog/exact"
	"github.com/konecto/actuator-agent/internal/catalog/semantic"
	"github.com/konecto/actuator-agent/internal/config"
	"github.com/konecto/actuator-agent/internal/conversation"
	"github.com/konecto/actuator-agent/internal/log"
	"github.com/konecto/actuator-agent/internal/tools"
	"github.com/konecto/actuator-agent/internal/trace"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	DBPool    *pgxpool.Pool
	CatalogDB *sql.DB

	Exact         *exact.Store
	Semantic      *semantic.Store
	Conversations conversation.Store
	Kit           *tools.Kit
	Agent         *agent.Agent

	sink        *trace.BufferedSink
	otelCleanup func()
}

// Close releases all resources in reverse order of acquisition. Safe to
// call on a partially initialized App.
func (a *App) Close() error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down application")

	if a.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.sink.Close(ctx); err != nil {
			logger.Warn("closing trace sink", "error", err)
		}
		cancel()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		logger.Debug("database pool closed")
	}
	if a.CatalogDB != nil {
		if err := a.CatalogDB.Close(); err != nil {
			logger.Warn("closing catalog database", "error", err)
		}
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
