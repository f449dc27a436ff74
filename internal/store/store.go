// Package store persists kernels, chunks, conversation turns, and
// contradiction edges in PostgreSQL with pgvector.
//
// All write paths that touch a kernel's derived state take a row lock on
// the kernel (SELECT ... FOR UPDATE) so concurrent ingests and graph
// rebuilds against the same kernel serialize instead of interleaving.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kernelworks/kernelstudio/internal/kernel"
)

// DB is the subset of pgxpool.Pool the store depends on.
// Interfaces are defined by the consumer, not the provider.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages persistence for all kernel state.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store backed by db.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// SearchResult is a chunk with its similarity score against a query vector.
type SearchResult struct {
	Chunk kernel.Chunk
	Score float32
}

// CreateKernel creates a new kernel. Names are labels, not keys; two
// kernels may share a name.
func (s *Store) CreateKernel(ctx context.Context, name string) (*kernel.Kernel, error) {
	k := kernel.Kernel{ID: uuid.New(), Name: name}

	err := s.db.QueryRow(ctx,
		`INSERT INTO kernels (id, name) VALUES ($1, $2) RETURNING created_at`,
		k.ID, k.Name,
	).Scan(&k.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating kernel: %w", err)
	}

	s.logger.Debug("created kernel", "id", k.ID, "name", k.Name)
	return &k, nil
}

// GetKernel retrieves a kernel with its chunk and turn counts.
// Returns kernel.ErrNotFound if no kernel has this id.
func (s *Store) GetKernel(ctx context.Context, id uuid.UUID) (*kernel.Kernel, error) {
	var k kernel.Kernel
	err := s.db.QueryRow(ctx,
		`SELECT k.id, k.name, k.created_at,
		        (SELECT count(*) FROM chunks c WHERE c.kernel_id = k.id),
		        (SELECT count(*) FROM conversation_turns t WHERE t.kernel_id = k.id)
		 FROM kernels k WHERE k.id = $1`,
		id,
	).Scan(&k.ID, &k.Name, &k.CreatedAt, &k.ChunkCount, &k.TurnCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("kernel %s: %w", id, kernel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting kernel: %w", err)
	}
	return &k, nil
}

// ListKernels lists all kernels, newest first.
func (s *Store) ListKernels(ctx context.Context) ([]kernel.Kernel, error) {
	rows, err := s.db.Query(ctx,
		`SELECT k.id, k.name, k.created_at,
		        (SELECT count(*) FROM chunks c WHERE c.kernel_id = k.id),
		        (SELECT count(*) FROM conversation_turns t WHERE t.kernel_id = k.id)
		 FROM kernels k ORDER BY k.created_at DESC, k.id`)
	if err != nil {
		return nil, fmt.Errorf("listing kernels: %w", err)
	}
	defer rows.Close()

	kernels := []kernel.Kernel{}
	for rows.Next() {
		var k kernel.Kernel
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &k.ChunkCount, &k.TurnCount); err != nil {
			return nil, fmt.Errorf("scanning kernel: %w", err)
		}
		kernels = append(kernels, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing kernels: %w", err)
	}
	return kernels, nil
}

// DeleteKernel deletes a kernel and, via ON DELETE CASCADE, all of its
// chunks, turns, and contradictions. Returns kernel.ErrNotFound if the
// kernel does not exist, so a second delete of the same id fails.
func (s *Store) DeleteKernel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM kernels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting kernel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kernel %s: %w", id, kernel.ErrNotFound)
	}
	s.logger.Debug("deleted kernel", "id", id)
	return nil
}

// AddChunks inserts a batch of chunks for one kernel in a single
// transaction. The kernel row is locked for the duration, so concurrent
// ingests into the same kernel serialize and the batch becomes visible
// atomically. Embeddings must already be populated.
func (s *Store) AddChunks(ctx context.Context, kernelID uuid.UUID, chunks []kernel.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockKernel(ctx, tx, kernelID); err != nil {
		return err
	}

	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.KernelID = kernelID
		err := tx.QueryRow(ctx,
			`INSERT INTO chunks (id, kernel_id, source, position, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING seq, created_at`,
			c.ID, kernelID, c.Source, c.Position, c.Content, pgvector.NewVector(c.Embedding),
		).Scan(&c.Seq, &c.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}

	s.logger.Debug("added chunks", "kernel_id", kernelID, "count", len(chunks))
	return nil
}

// ListChunks returns all chunks of a kernel in insertion order,
// embeddings included. Returns kernel.ErrNotFound for a missing kernel.
func (s *Store) ListChunks(ctx context.Context, kernelID uuid.UUID) ([]kernel.Chunk, error) {
	if err := s.kernelExists(ctx, kernelID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, kernel_id, source, position, seq, content, embedding, created_at
		 FROM chunks WHERE kernel_id = $1 ORDER BY seq`,
		kernelID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	chunks := []kernel.Chunk{}
	for rows.Next() {
		var c kernel.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.KernelID, &c.Source, &c.Position, &c.Seq,
			&c.Content, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	return chunks, nil
}

// SearchChunks returns the topK most similar chunks by cosine similarity.
// Ties are broken by seq ascending, so equal-scoring chunks come back in
// ingestion order. Returns kernel.ErrNotFound for a missing kernel.
func (s *Store) SearchChunks(ctx context.Context, kernelID uuid.UUID, query []float32, topK int) ([]SearchResult, error) {
	if err := s.kernelExists(ctx, kernelID); err != nil {
		return nil, err
	}

	qvec := pgvector.NewVector(query)
	rows, err := s.db.Query(ctx,
		`SELECT id, kernel_id, source, position, seq, content, created_at,
		        1 - (embedding <=> $2) AS score
		 FROM chunks
		 WHERE kernel_id = $1
		 ORDER BY embedding <=> $2, seq
		 LIMIT $3`,
		kernelID, qvec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.KernelID, &r.Chunk.Source,
			&r.Chunk.Position, &r.Chunk.Seq, &r.Chunk.Content,
			&r.Chunk.CreatedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	return results, nil
}

// AppendTurn persists one conversation turn. The kernel row lock
// serializes concurrent appends so created_at reflects arrival order,
// and a concurrently deleted kernel surfaces kernel.ErrNotFound rather
// than a foreign key violation. The turn is durable when this returns
// nil.
func (s *Store) AppendTurn(ctx context.Context, turn *kernel.ConversationTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}

	retrieved, err := json.Marshal(turn.Retrieved)
	if err != nil {
		return fmt.Errorf("encoding retrieved chunks: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockKernel(ctx, tx, turn.KernelID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO conversation_turns (id, kernel_id, query, answer, decision, top_score, retrieved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		turn.ID, turn.KernelID, turn.Query, turn.Answer, turn.Decision, turn.TopScore, retrieved,
	).Scan(&turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// ListTurns returns up to limit most recent turns, newest first.
// Returns kernel.ErrNotFound for a missing kernel.
func (s *Store) ListTurns(ctx context.Context, kernelID uuid.UUID, limit int) ([]kernel.ConversationTurn, error) {
	if err := s.kernelExists(ctx, kernelID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, kernel_id, query, answer, decision, top_score, retrieved, created_at
		 FROM conversation_turns
		 WHERE kernel_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		kernelID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	turns := []kernel.ConversationTurn{}
	for rows.Next() {
		var t kernel.ConversationTurn
		var retrieved []byte
		if err := rows.Scan(&t.ID, &t.KernelID, &t.Query, &t.Answer, &t.Decision,
			&t.TopScore, &retrieved, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal(retrieved, &t.Retrieved); err != nil {
			return nil, fmt.Errorf("decoding retrieved chunks: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	return turns, nil
}

// ReplaceContradictions swaps a kernel's contradiction edges for a fresh
// set in one transaction. The graph builder recomputes edges from scratch,
// so replace-all keeps the stored set consistent with the last full pass.
func (s *Store) ReplaceContradictions(ctx context.Context, kernelID uuid.UUID, edges []kernel.ContradictionEdge) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockKernel(ctx, tx, kernelID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM contradictions WHERE kernel_id = $1`, kernelID); err != nil {
		return fmt.Errorf("clearing contradictions: %w", err)
	}

	for i := range edges {
		e := &edges[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.KernelID = kernelID
		err := tx.QueryRow(ctx,
			`INSERT INTO contradictions (id, kernel_id, chunk_a, chunk_b, pole_a, pole_b, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING created_at`,
			e.ID, kernelID, e.ChunkA, e.ChunkB, e.PoleA, e.PoleB, e.Confidence,
		).Scan(&e.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting contradiction %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing contradictions: %w", err)
	}

	s.logger.Debug("replaced contradictions", "kernel_id", kernelID, "count", len(edges))
	return nil
}

// ListContradictions returns a kernel's contradiction edges in detection
// order. Returns kernel.ErrNotFound for a missing kernel.
func (s *Store) ListContradictions(ctx context.Context, kernelID uuid.UUID) ([]kernel.ContradictionEdge, error) {
	if err := s.kernelExists(ctx, kernelID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, kernel_id, chunk_a, chunk_b, pole_a, pole_b, confidence, created_at
		 FROM contradictions WHERE kernel_id = $1 ORDER BY created_at, id`,
		kernelID)
	if err != nil {
		return nil, fmt.Errorf("listing contradictions: %w", err)
	}
	defer rows.Close()

	edges := []kernel.ContradictionEdge{}
	for rows.Next() {
		var e kernel.ContradictionEdge
		if err := rows.Scan(&e.ID, &e.KernelID, &e.ChunkA, &e.ChunkB,
			&e.PoleA, &e.PoleB, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning contradiction: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing contradictions: %w", err)
	}
	return edges, nil
}

// kernelExists reports kernel.ErrNotFound if the kernel row is absent.
func (s *Store) kernelExists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM kernels WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("kernel %s: %w", id, kernel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking kernel: %w", err)
	}
	return nil
}

// lockKernel takes the kernel's row lock inside tx, serializing writers
// of the same kernel for the rest of the transaction.
func lockKernel(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM kernels WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("kernel %s: %w", id, kernel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking kernel: %w", err)
	}
	return nil
}
