package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/kernelworks/kernelstudio/db"
	"github.com/kernelworks/kernelstudio/internal/api"
	"github.com/kernelworks/kernelstudio/internal/compose"
	"github.com/kernelworks/kernelstudio/internal/config"
	"github.com/kernelworks/kernelstudio/internal/embed"
	"github.com/kernelworks/kernelstudio/internal/gate"
	"github.com/kernelworks/kernelstudio/internal/graph"
	"github.com/kernelworks/kernelstudio/internal/ingest"
	"github.com/kernelworks/kernelstudio/internal/retrieval"
	"github.com/kernelworks/kernelstudio/internal/store"
)

// Setup creates and initializes the application.
// On failure everything already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool
	a.Store = store.New(pool, logger)

	g, generator, err := provideGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder, err := provideEmbedder(g, cfg)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder

	chunker := ingest.NewChunker(cfg.ChunkMaxChars, cfg.ChunkOverlapSentences)
	pipeline, err := ingest.NewPipeline(a.Store, embedder, chunker, cfg.DataRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingest pipeline: %w", err)
	}
	a.Pipeline = pipeline

	a.Engine = retrieval.NewEngine(embedder, a.Store, cfg.TopK, logger)

	gt, err := gate.New(cfg.Gate.MinRelevance, cfg.Gate.HighConfidence, cfg.Gate.Disallowed)
	if err != nil {
		return nil, fmt.Errorf("creating answer gate: %w", err)
	}
	a.Gate = gt

	// One model call per 500ms, small burst. The fallback path is not
	// rate limited.
	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 2)
	a.Composer = compose.New(generator, compose.DefaultRetryConfig(), limiter, logger)

	a.Graph = graph.NewBuilder(a.Store, graph.NewLexicalDetector(),
		cfg.Graph.LinkThreshold, cfg.Graph.ContradictionThreshold, logger)

	srv, err := api.NewServer(api.ServerConfig{
		Logger:          logger,
		Kernels:         a.Store,
		Turns:           a.Store,
		Ingestor:        a.Pipeline,
		Retriever:       a.Engine,
		Gate:            a.Gate,
		Composer:        a.Composer,
		Graph:           a.Graph,
		Pinger:          pool,
		MaxHistoryTurns: cfg.MaxHistoryTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = srv

	return a, nil
}

// provideOtelShutdown wires an OTLP HTTP trace exporter into Genkit's
// TracerProvider. An empty endpoint disables tracing entirely.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if cfg.TraceEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.TraceEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	logger.Debug("tracing enabled", "endpoint", cfg.TraceEndpoint)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, err
	}

	return pool, pool.Close, nil
}

// provideGenerator initializes Genkit for the configured generative
// provider and returns the composer's generator. Provider "none" returns
// a nil generator and a nil Genkit instance; the composer then answers
// every gated query with the deterministic fallback.
func provideGenerator(ctx context.Context, cfg *config.Config) (*genkit.Genkit, compose.Generator, error) {
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil, nil

	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		if cfg.EmbedderProvider == config.EmbedderOllama {
			ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		}
		gen, err := compose.NewGenkitGenerator(g, "ollama/"+cfg.ModelName)
		if err != nil {
			return nil, nil, err
		}
		return g, gen, nil

	case config.ProviderGoogleAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with googleai provider")
		}
		gen, err := compose.NewGenkitGenerator(g, "googleai/"+cfg.ModelName)
		if err != nil {
			return nil, nil, err
		}
		return g, gen, nil

	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// provideEmbedder selects the embedding backend. The local embedder needs
// no Genkit instance; the remote ones wrap the provider's registered
// embedder behind the same interface.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) (embed.Embedder, error) {
	switch cfg.EmbedderProvider {
	case config.EmbedderLocal:
		return embed.NewLocal(cfg.EmbeddingDim)

	case config.EmbedderGoogleAI:
		if g == nil {
			return nil, errors.New("googleai embedder requires the googleai provider")
		}
		return embed.NewGenkit(googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), cfg.EmbeddingDim)

	case config.EmbedderOllama:
		if g == nil {
			return nil, errors.New("ollama embedder requires the ollama provider")
		}
		var e ai.Embedder = ollama.Embedder(g, cfg.OllamaHost)
		return embed.NewGenkit(e, cfg.EmbeddingDim)

	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.EmbedderProvider)
	}
}
