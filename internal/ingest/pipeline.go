// Package ingest turns uploaded documents into embedded chunks.
//
// The pipeline spools the upload to a scratch directory, extracts plain
// text, chunks it sentence-aware, embeds each batch, and appends the
// batch to the store. Batches already persisted stay persisted if a
// later batch fails, so a partially ingested document is visible as far
// as it got.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/embed"
	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// embedBatchSize is how many chunks go to the embedder and the store per
// round trip.
const embedBatchSize = 32

// lockRetryDelay is how often a waiting ingest re-probes the scratch
// directory lock.
const lockRetryDelay = 50 * time.Millisecond

// ChunkStore is the persistence surface the pipeline needs.
type ChunkStore interface {
	AddChunks(ctx context.Context, kernelID uuid.UUID, chunks []kernel.Chunk) error
}

// Result summarizes one completed ingest. Errors lists the partial
// problems (skipped pages, for example) that did not stop the ingest.
type Result struct {
	Source string   `json:"source"`
	Chunks int      `json:"chunks_created"`
	Errors []string `json:"errors"`
}

// Pipeline ingests documents into a kernel.
//
// Pipeline is safe for concurrent use; cross-process access to the
// scratch directory is serialized with a file lock.
type Pipeline struct {
	store    ChunkStore
	embedder embed.Embedder
	chunker  *Chunker
	dataRoot string
	lock     *flock.Flock
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline. dataRoot is created if missing and
// holds upload spool files plus the ingest lock file.
func NewPipeline(store ChunkStore, embedder embed.Embedder, chunker *Chunker, dataRoot string, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dataRoot, 0o750); err != nil {
		return nil, fmt.Errorf("creating data root: %w", err)
	}
	return &Pipeline{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		dataRoot: dataRoot,
		lock:     flock.New(filepath.Join(dataRoot, "ingest.lock")),
		logger:   logger,
	}, nil
}

// Ingest processes one uploaded document into kernelID.
//
// Returns kernel.ErrUnprocessableDocument for unsupported formats and
// documents with no extractable text, and kernel.ErrNotFound when the
// kernel does not exist.
func (p *Pipeline) Ingest(ctx context.Context, kernelID uuid.UUID, filename string, r io.Reader) (*Result, error) {
	text, partial, err := p.spoolAndExtract(ctx, filename, r)
	if err != nil {
		return nil, err
	}

	contents := p.chunker.Chunk(text)
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced from %s", kernel.ErrUnprocessableDocument, filename)
	}

	source := filepath.Base(filename)
	for start := 0; start < len(contents); start += embedBatchSize {
		end := min(start+embedBatchSize, len(contents))

		vecs, err := p.embedder.EmbedBatch(ctx, contents[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d..%d: %w", start, end, err)
		}

		batch := make([]kernel.Chunk, end-start)
		for i := range batch {
			batch[i] = kernel.Chunk{
				Source:    source,
				Position:  start + i,
				Content:   contents[start+i],
				Embedding: vecs[i],
			}
		}
		if err := p.store.AddChunks(ctx, kernelID, batch); err != nil {
			return nil, fmt.Errorf("persisting chunks %d..%d: %w", start, end, err)
		}
	}

	p.logger.Info("ingested document",
		"kernel_id", kernelID, "source", source,
		"chunks", len(contents), "partial_errors", len(partial))
	if partial == nil {
		partial = []string{}
	}
	return &Result{Source: source, Chunks: len(contents), Errors: partial}, nil
}

// spoolAndExtract holds the scratch directory lock only for the file
// phase: spooling the upload and extracting its text. Embedding and
// persistence run outside the lock, so ingests into different kernels
// overlap (the store serializes writers per kernel). The lock wait
// itself honors ctx.
func (p *Pipeline) spoolAndExtract(ctx context.Context, filename string, r io.Reader) (string, []string, error) {
	locked, err := p.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", nil, fmt.Errorf("acquiring ingest lock: %w", err)
	}
	if !locked {
		return "", nil, fmt.Errorf("acquiring ingest lock: not acquired")
	}
	defer func() { _ = p.lock.Unlock() }()

	spool, err := p.spool(filename, r)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = os.Remove(spool) }()

	return ExtractFile(spool, filename)
}

// spool copies the upload into the scratch directory so extractors that
// need random access (PDF) can work from a real file.
func (p *Pipeline) spool(filename string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(p.dataRoot, "upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("creating spool file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("spooling upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("closing spool file: %w", err)
	}
	return f.Name(), nil
}
