package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/compose"
	"github.com/kernelworks/kernelstudio/internal/gate"
	"github.com/kernelworks/kernelstudio/internal/kernel"
	"github.com/kernelworks/kernelstudio/internal/store"
)

// maxQueryLen bounds one chat query.
const maxQueryLen = 4000

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, kernelID uuid.UUID, query string) ([]store.SearchResult, error)
}

// Composer produces the final answer for one turn.
type Composer interface {
	Compose(ctx context.Context, in compose.Input) (compose.Output, error)
}

// TurnStore persists and reads conversation history.
type TurnStore interface {
	AppendTurn(ctx context.Context, turn *kernel.ConversationTurn) error
	ListTurns(ctx context.Context, kernelID uuid.UUID, limit int) ([]kernel.ConversationTurn, error)
	ListContradictions(ctx context.Context, kernelID uuid.UUID) ([]kernel.ContradictionEdge, error)
}

type chatHandler struct {
	kernels         KernelStore
	turns           TurnStore
	retriever       Retriever
	gate            *gate.Gate
	composer        Composer
	maxHistoryTurns int
	logger          *slog.Logger
}

type chatRequest struct {
	KernelID uuid.UUID `json:"kernel_id"`
	Query    string    `json:"query"`
}

type citation struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Source  string    `json:"source"`
	Score   float32   `json:"score"`
}

type chatResponse struct {
	Answer    string        `json:"answer"`
	Decision  gate.Decision `json:"decision"`
	Method    string        `json:"method"`
	Citations []citation    `json:"citations"`
}

// send runs the full chat path: retrieve, gate, compose, persist the
// turn. Generative failures degrade to the deterministic fallback inside
// the composer, so a well-formed request cannot fail with a 5xx on the
// generation path.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.KernelID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "validation_error", "kernel_id is required")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "query is required")
		return
	}
	if len(req.Query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "validation_error", "query too long")
		return
	}

	ctx := r.Context()

	k, err := h.kernels.GetKernel(ctx, req.KernelID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	// Disallowed queries are refused before any embedding or search.
	var results []store.SearchResult
	decision, refused := h.gate.Refusal(req.Query)
	if !refused {
		results, err = h.retriever.Retrieve(ctx, req.KernelID, req.Query)
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}

		scores := make([]float32, len(results))
		for i, res := range results {
			scores[i] = res.Score
		}
		decision = h.gate.Evaluate(req.Query, scores)
	}

	// History and contradictions are composer context; failures there
	// should not take down the chat path.
	history, err := h.turns.ListTurns(ctx, req.KernelID, h.maxHistoryTurns)
	if err != nil {
		h.logger.Warn("loading history failed", "kernel_id", req.KernelID, "error", err)
	}
	contradictions, err := h.turns.ListContradictions(ctx, req.KernelID)
	if err != nil {
		h.logger.Warn("loading contradictions failed", "kernel_id", req.KernelID, "error", err)
	}

	out, err := h.composer.Compose(ctx, compose.Input{
		KernelName:     k.Name,
		Query:          req.Query,
		Decision:       decision,
		Results:        results,
		Contradictions: contradictions,
		History:        history,
	})
	if err != nil {
		// Only context cancellation reaches here.
		writeDomainError(w, err, h.logger)
		return
	}

	turn := &kernel.ConversationTurn{
		KernelID:  req.KernelID,
		Query:     req.Query,
		Answer:    out.Answer,
		Decision:  decision.State,
		TopScore:  decision.TopScore,
		Retrieved: retrievedRefs(results),
	}
	if err := h.turns.AppendTurn(ctx, turn); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	resp := chatResponse{
		Answer:    out.Answer,
		Decision:  decision,
		Method:    out.Method,
		Citations: []citation{},
	}
	if decision.State != gate.StateRefuse {
		for _, res := range results {
			resp.Citations = append(resp.Citations, citation{
				ChunkID: res.Chunk.ID,
				Source:  res.Chunk.Source,
				Score:   res.Score,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func retrievedRefs(results []store.SearchResult) []kernel.RetrievedChunk {
	refs := make([]kernel.RetrievedChunk, len(results))
	for i, res := range results {
		refs[i] = kernel.RetrievedChunk{ChunkID: res.Chunk.ID, Score: res.Score}
	}
	return refs
}
