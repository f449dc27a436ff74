// Package retrieval finds the chunks most relevant to a query.
//
// The Engine embeds the query and delegates nearest-neighbor search to an
// Index. The production index is the pgvector-backed store; an in-memory
// linear-scan index exists for tests and small corpora.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/embed"
	"github.com/kernelworks/kernelstudio/internal/store"
)

// Index performs vector search within one kernel.
// Results come back ordered by score descending, ties broken by chunk
// seq ascending.
type Index interface {
	SearchChunks(ctx context.Context, kernelID uuid.UUID, query []float32, topK int) ([]store.SearchResult, error)
}

// Engine retrieves chunks for queries.
type Engine struct {
	embedder embed.Embedder
	index    Index
	topK     int
	logger   *slog.Logger
}

// NewEngine creates an Engine returning up to topK chunks per query.
func NewEngine(embedder embed.Embedder, index Index, topK int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, index: index, topK: topK, logger: logger}
}

// Retrieve embeds query and returns the closest chunks in kernelID.
// A kernel with fewer than topK chunks yields fewer results; an empty
// kernel yields an empty slice, not an error. Missing kernels surface
// the index's kernel.ErrNotFound.
func (e *Engine) Retrieve(ctx context.Context, kernelID uuid.UUID, query string) ([]store.SearchResult, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := e.index.SearchChunks(ctx, kernelID, vec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	topScore := float32(0)
	if len(results) > 0 {
		topScore = results[0].Score
	}
	e.logger.Debug("retrieved chunks",
		"kernel_id", kernelID, "count", len(results), "top_score", topScore)
	return results, nil
}
