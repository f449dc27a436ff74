package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/ingest"
)

// maxUploadBytes caps one uploaded document.
const maxUploadBytes = 64 << 20 // 64 MiB

// Ingestor processes one uploaded document into a kernel.
type Ingestor interface {
	Ingest(ctx context.Context, kernelID uuid.UUID, filename string, r io.Reader) (*ingest.Result, error)
}

type ingestHandler struct {
	pipeline Ingestor
	logger   *slog.Logger
}

// ingest handles multipart uploads: a kernel_id form field plus a file.
func (h *ingestHandler) ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	kernelID, err := uuid.Parse(r.FormValue("kernel_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid kernel_id: must be a UUID")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	result, err := h.pipeline.Ingest(r.Context(), kernelID, header.Filename, file)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
