// Package embed produces fixed-width vector embeddings for chunk and
// query text.
//
// Two implementations are provided: Local, a deterministic feature-hashing
// embedder that needs no network access, and Genkit, a bridge to an
// ai.Embedder registered with a Genkit provider plugin. Both emit
// L2-normalized vectors so that pgvector cosine distance and plain dot
// products agree.
package embed

import "context"

// Embedder turns text into a fixed-width vector.
//
// Implementations must be deterministic per input within a process
// lifetime and must return vectors of exactly Dimension() width.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order; result[i] corresponds to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the vector width this embedder produces.
	Dimension() int
}
