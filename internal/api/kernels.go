package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// maxKernelNameLen bounds display names; they are labels, not documents.
const maxKernelNameLen = 200

// KernelStore is the persistence surface the kernel handlers need.
type KernelStore interface {
	CreateKernel(ctx context.Context, name string) (*kernel.Kernel, error)
	GetKernel(ctx context.Context, id uuid.UUID) (*kernel.Kernel, error)
	ListKernels(ctx context.Context) ([]kernel.Kernel, error)
	DeleteKernel(ctx context.Context, id uuid.UUID) error
}

type kernelHandler struct {
	store  KernelStore
	logger *slog.Logger
}

type createKernelRequest struct {
	Name string `json:"name"`
}

func (h *kernelHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createKernelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	if len(req.Name) > maxKernelNameLen {
		writeError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("name exceeds %d characters", maxKernelNameLen))
		return
	}

	k, err := h.store.CreateKernel(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

func (h *kernelHandler) list(w http.ResponseWriter, r *http.Request) {
	kernels, err := h.store.ListKernels(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, kernels)
}

func (h *kernelHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	k, err := h.store.GetKernel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (h *kernelHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteKernel(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathUUID parses a UUID path value, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("invalid %s: must be a UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

// queryKernelID parses the kernel_id query parameter, writing a 400 on
// failure.
func queryKernelID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("kernel_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "kernel_id query parameter is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid kernel_id: must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
