package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/konecto/actuator-agent/db"
	"github.com/konecto/actuator-agent/internal/agent"
	"github.com/konecto/actuator-agent/internal/catalog/exact"
	"github.com/konecto/actuator-agent/internal/catalog/semantic"
	"github.com/konecto/actuator-agent/internal/config"
	"github.com/konecto/actuator-agent/internal/conversation"
	"github.com/konecto/actuator-agent/internal/log"
	"github.com/konecto/actuator-agent/internal/observability"
	"github.com/konecto/actuator-agent/internal/tools"
	"github.com/konecto/actuator-agent/internal/trace"
)

// traceBufferSize bounds the in-flight turn trace queue.
const traceBufferSize = 256

// Setup creates and initializes the application. Call Close on the
// returned App to release resources; on error everything already
// initialized is cleaned up.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := newLogger(cfg)
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before genkit.Init so provider spans
	// attach to the shared TracerProvider.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	catalogDB, exactStore, err := provideCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.CatalogDB = catalogDB
	a.Exact = exactStore

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Semantic = semantic.New(semantic.NewPgxQuerier(pool), embedder, logger)
	a.Conversations = conversation.NewPostgresStore(pool, cfg.MaxHistoryTurns, logger)
	a.Kit = tools.NewKit(exactStore, a.Semantic, cfg.DefaultTopK, cfg.ToolTimeout, logger)

	composer := agent.NewLLMComposer(g, agent.LLMComposerConfig{
		ModelName: cfg.FullModelName(),
	}, logger)

	a.sink = trace.NewBufferedSink(traceBufferSize, trace.LogSink{Logger: logger}, logger)

	a.Agent = agent.New(a.Kit, a.Conversations, composer, a.sink, agent.Config{
		DefaultTopK:       cfg.DefaultTopK,
		MinResults:        cfg.MinResults,
		ClarifyMinSignals: cfg.ClarifyMinSignals,
		ComposeTimeout:    cfg.ComposeTimeout,
	}, logger)

	return a, nil
}

// newLogger builds the process logger from config and installs it as the
// slog default so library code logging through slog lands in one stream.
func newLogger(cfg *config.Config) log.Logger {
	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// provideOtelShutdown registers the OTLP exporter before genkit
// initialization so the TracerProvider is ready.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: observability.DefaultServiceName,
	})
	if err != nil {
		logger.Warn("setting up tracing", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideCatalog opens the SQLite part-number catalog and applies its
// schema.
func provideCatalog(cfg *config.Config, logger log.Logger) (*sql.DB, *exact.Store, error) {
	catalogDB, err := exact.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := exact.Migrate(catalogDB); err != nil {
		_ = catalogDB.Close()
		return nil, nil, fmt.Errorf("migrating catalog: %w", err)
	}
	return catalogDB, exact.New(catalogDB, logger), nil
}

// provideGenkit initializes genkit with the configured model provider.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration, there is no discovery.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized genkit with googleai provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Ollama embedders are keyed by server address.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
