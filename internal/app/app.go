// Package app assembles the application: configuration, database pool,
// embedder, pipeline, retrieval, gate, composer, graph builder and the
// HTTP API server.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

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

// App is the application container. Setup builds it, Close releases it.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit // nil when Provider is "none"
	DBPool   *pgxpool.Pool
	Store    *store.Store
	Embedder embed.Embedder
	Pipeline *ingest.Pipeline
	Engine   *retrieval.Engine
	Gate     *gate.Gate
	Composer *compose.Composer
	Graph    *graph.Builder
	Server   *api.Server

	otelCleanup func()
	dbCleanup   func()
}

// Close shuts down all resources in reverse initialization order.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
