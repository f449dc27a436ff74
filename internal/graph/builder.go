// Package graph derives a similarity graph and contradiction report from
// a kernel's chunks.
//
// Both outputs are read-side projections: they are recomputed from the
// full chunk set on demand and never mutated incrementally, so a rebuild
// after ingestion can never leave stale partial state behind.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// Store is the persistence surface the builder needs.
type Store interface {
	ListChunks(ctx context.Context, kernelID uuid.UUID) ([]kernel.Chunk, error)
	ReplaceContradictions(ctx context.Context, kernelID uuid.UUID, edges []kernel.ContradictionEdge) error
	ListContradictions(ctx context.Context, kernelID uuid.UUID) ([]kernel.ContradictionEdge, error)
}

// Builder computes graphs and contradiction sets.
//
// Pairwise comparison is the correctness baseline; it touches only the
// embedding vectors, never the chunk text, except inside the detector.
type Builder struct {
	store                  Store
	detector               Detector
	linkThreshold          float32
	contradictionThreshold float32
	logger                 *slog.Logger
}

// NewBuilder creates a Builder. Chunk pairs with cosine similarity at or
// above linkThreshold become graph edges; pairs at or above
// contradictionThreshold are additionally screened by detector.
func NewBuilder(store Store, detector Detector, linkThreshold, contradictionThreshold float32, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:                  store,
		detector:               detector,
		linkThreshold:          linkThreshold,
		contradictionThreshold: contradictionThreshold,
		logger:                 logger,
	}
}

// FindContradictions recomputes the kernel's contradiction edges from
// the full current chunk set and replaces the stored set atomically.
func (b *Builder) FindContradictions(ctx context.Context, kernelID uuid.UUID) ([]kernel.ContradictionEdge, error) {
	chunks, err := b.store.ListChunks(ctx, kernelID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}

	var edges []kernel.ContradictionEdge
	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			sim := cosine(chunks[i].Embedding, chunks[j].Embedding)
			if sim < b.contradictionThreshold {
				continue
			}
			poleA, poleB, ok := b.detector.Detect(chunks[i], chunks[j], sim)
			if !ok {
				continue
			}
			edges = append(edges, kernel.ContradictionEdge{
				KernelID:   kernelID,
				ChunkA:     chunks[i].ID,
				ChunkB:     chunks[j].ID,
				PoleA:      poleA,
				PoleB:      poleB,
				Confidence: sim,
			})
		}
	}

	if err := b.store.ReplaceContradictions(ctx, kernelID, edges); err != nil {
		return nil, fmt.Errorf("storing contradictions: %w", err)
	}

	b.logger.Debug("rebuilt contradictions",
		"kernel_id", kernelID, "chunks", len(chunks), "edges", len(edges))
	return edges, nil
}

// Build projects the kernel's chunks into a graph: one node per chunk,
// similarity links at or above the link threshold, and contradiction
// edges overlaid from the stored contradiction set.
func (b *Builder) Build(ctx context.Context, kernelID uuid.UUID) (*kernel.Graph, error) {
	chunks, err := b.store.ListChunks(ctx, kernelID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	contradictions, err := b.store.ListContradictions(ctx, kernelID)
	if err != nil {
		return nil, fmt.Errorf("loading contradictions: %w", err)
	}

	contradicting := make(map[[2]uuid.UUID]float32, len(contradictions))
	for _, e := range contradictions {
		contradicting[pairKey(e.ChunkA, e.ChunkB)] = e.Confidence
	}

	g := &kernel.Graph{
		Nodes: make([]kernel.GraphNode, len(chunks)),
		Edges: []kernel.GraphEdge{},
	}
	degree := make(map[uuid.UUID]int, len(chunks))

	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			key := pairKey(chunks[i].ID, chunks[j].ID)
			sim := cosine(chunks[i].Embedding, chunks[j].Embedding)
			confidence, isContradiction := contradicting[key]

			if sim < b.linkThreshold && !isContradiction {
				continue
			}

			weight := sim
			if isContradiction {
				weight = confidence
			}
			g.Edges = append(g.Edges, kernel.GraphEdge{
				Source:     chunks[i].ID,
				Target:     chunks[j].ID,
				Weight:     weight,
				Contradict: isContradiction,
			})
			degree[chunks[i].ID]++
			degree[chunks[j].ID]++
		}
	}

	for i, c := range chunks {
		g.Nodes[i] = kernel.GraphNode{
			ID:     c.ID,
			Label:  fmt.Sprintf("%s#%d", c.Source, c.Position),
			Degree: degree[c.ID],
		}
	}
	return g, nil
}

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

func cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := range n {
		sum += a[i] * b[i]
	}
	// Stored vectors are normalized, so the dot product is the cosine.
	return sum
}
