package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// GraphBuilder recomputes contradiction edges and projects the chunk
// graph for one kernel.
type GraphBuilder interface {
	Build(ctx context.Context, kernelID uuid.UUID) (*kernel.Graph, error)
	FindContradictions(ctx context.Context, kernelID uuid.UUID) ([]kernel.ContradictionEdge, error)
}

type graphHandler struct {
	builder GraphBuilder
	logger  *slog.Logger
}

// contradictions rebuilds and returns the kernel's contradiction edges.
// The rebuild reflects the full current chunk set; stale edges from
// before the latest ingest do not survive.
func (h *graphHandler) contradictions(w http.ResponseWriter, r *http.Request) {
	kernelID, ok := queryKernelID(w, r)
	if !ok {
		return
	}
	edges, err := h.builder.FindContradictions(r.Context(), kernelID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if edges == nil {
		edges = []kernel.ContradictionEdge{}
	}
	writeJSON(w, http.StatusOK, edges)
}

// graph returns the similarity/contradiction projection of the kernel.
func (h *graphHandler) graph(w http.ResponseWriter, r *http.Request) {
	kernelID, ok := queryKernelID(w, r)
	if !ok {
		return
	}
	g, err := h.builder.Build(r.Context(), kernelID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
