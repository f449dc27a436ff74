package kernel

import "errors"

// Sentinel errors shared across the service. Wrap with fmt.Errorf("...: %w")
// so callers can classify failures with errors.Is at the API boundary.
var (
	// ErrNotFound indicates a missing kernel or chunk.
	ErrNotFound = errors.New("not found")

	// ErrUnprocessableDocument indicates ingest could not extract any text
	// from an uploaded document. No chunks are written in this case.
	ErrUnprocessableDocument = errors.New("unprocessable document")

	// ErrModelUnavailable indicates an embedding or generative backend cannot
	// be reached. Fatal at startup for embedders; the chat path degrades to
	// the deterministic composer instead of surfacing it.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrRateLimited indicates generative backend backpressure after retries
	// were exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation error")
)
