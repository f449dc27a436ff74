package embed

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// Genkit bridges a provider-registered ai.Embedder to the Embedder
// interface. The provider plugin decides the actual vector width, so the
// expected dimension is checked on every response rather than trusted.
type Genkit struct {
	embedder ai.Embedder
	dim      int
}

// NewGenkit wraps a registered ai.Embedder.
// A nil embedder means the provider lookup failed at startup; that is
// reported as kernel.ErrModelUnavailable so callers can fall back.
func NewGenkit(embedder ai.Embedder, dim int) (*Genkit, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder not registered by provider", kernel.ErrModelUnavailable)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	return &Genkit{embedder: embedder, dim: dim}, nil
}

// Dimension reports the expected vector width.
func (g *Genkit) Dimension() int { return g.dim }

// Embed embeds a single text.
func (g *Genkit) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one provider request, preserving order.
func (g *Genkit) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := &ai.EmbedRequest{Input: make([]*ai.Document, len(texts))}
	for i, text := range texts {
		req.Input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := g.embedder.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kernel.ErrModelUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			kernel.ErrModelUnavailable, len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != g.dim {
			return nil, fmt.Errorf("embedder returned %d dimensions, schema expects %d",
				len(e.Embedding), g.dim)
		}
		vec := make([]float32, len(e.Embedding))
		copy(vec, e.Embedding)
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}
