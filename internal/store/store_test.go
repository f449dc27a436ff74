package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/kernel"
	"github.com/kernelworks/kernelstudio/internal/store"
	"github.com/kernelworks/kernelstudio/internal/testutil"
)

const dim = 768

// unitVec returns a 768-dim one-hot vector.
func unitVec(idx int) []float32 {
	v := make([]float32, dim)
	v[idx%dim] = 1
	return v
}

func TestStore_KernelLifecycle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	k, err := s.CreateKernel(ctx, "physics-notes")
	if err != nil {
		t.Fatalf("CreateKernel() = %v", err)
	}
	if k.ID == uuid.Nil || k.Name != "physics-notes" || k.CreatedAt.IsZero() {
		t.Fatalf("CreateKernel() returned incomplete kernel: %+v", k)
	}

	// Names are not unique.
	dup, err := s.CreateKernel(ctx, "physics-notes")
	if err != nil {
		t.Fatalf("CreateKernel() duplicate name = %v", err)
	}
	if dup.ID == k.ID {
		t.Fatal("duplicate-name kernel shares id with original")
	}

	got, err := s.GetKernel(ctx, k.ID)
	if err != nil {
		t.Fatalf("GetKernel() = %v", err)
	}
	if got.ChunkCount != 0 || got.TurnCount != 0 {
		t.Errorf("fresh kernel counts = %d/%d, want 0/0", got.ChunkCount, got.TurnCount)
	}

	kernels, err := s.ListKernels(ctx)
	if err != nil {
		t.Fatalf("ListKernels() = %v", err)
	}
	if len(kernels) != 2 {
		t.Fatalf("ListKernels() returned %d kernels, want 2", len(kernels))
	}

	if err := s.DeleteKernel(ctx, k.ID); err != nil {
		t.Fatalf("DeleteKernel() = %v", err)
	}
	if err := s.DeleteKernel(ctx, k.ID); !errors.Is(err, kernel.ErrNotFound) {
		t.Fatalf("second DeleteKernel() = %v, want ErrNotFound", err)
	}
	if _, err := s.GetKernel(ctx, k.ID); !errors.Is(err, kernel.ErrNotFound) {
		t.Fatalf("GetKernel() after delete = %v, want ErrNotFound", err)
	}
}

func TestStore_AddAndSearchChunks(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	k, err := s.CreateKernel(ctx, "chem")
	if err != nil {
		t.Fatalf("CreateKernel() = %v", err)
	}

	chunks := []kernel.Chunk{
		{Source: "a.txt", Position: 0, Content: "first", Embedding: unitVec(0)},
		{Source: "a.txt", Position: 1, Content: "second", Embedding: unitVec(1)},
		{Source: "a.txt", Position: 2, Content: "third", Embedding: unitVec(1)},
	}
	if err := s.AddChunks(ctx, k.ID, chunks); err != nil {
		t.Fatalf("AddChunks() = %v", err)
	}

	listed, err := s.ListChunks(ctx, k.ID)
	if err != nil {
		t.Fatalf("ListChunks() = %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("ListChunks() returned %d, want 3", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].Seq <= listed[i-1].Seq {
			t.Fatalf("chunks not in seq order: %d then %d", listed[i-1].Seq, listed[i].Seq)
		}
	}
	if len(listed[0].Embedding) != dim {
		t.Errorf("embedding width = %d, want %d", len(listed[0].Embedding), dim)
	}

	// Query aligned with unitVec(1): "second" and "third" tie, and the
	// tie must resolve by ingestion order.
	results, err := s.SearchChunks(ctx, k.ID, unitVec(1), 3)
	if err != nil {
		t.Fatalf("SearchChunks() = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("SearchChunks() returned %d, want 3", len(results))
	}
	if results[0].Chunk.Content != "second" || results[1].Chunk.Content != "third" {
		t.Errorf("tie-break order = %q, %q; want second, third",
			results[0].Chunk.Content, results[1].Chunk.Content)
	}
	if results[0].Score < 0.99 {
		t.Errorf("aligned score = %f, want ~1", results[0].Score)
	}
	if results[2].Score > 0.01 {
		t.Errorf("orthogonal score = %f, want ~0", results[2].Score)
	}

	// Counts reflect the ingest.
	got, err := s.GetKernel(ctx, k.ID)
	if err != nil {
		t.Fatalf("GetKernel() = %v", err)
	}
	if got.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", got.ChunkCount)
	}
}

func TestStore_ChunkOperationsOnMissingKernel(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()
	missing := uuid.New()

	err := s.AddChunks(ctx, missing, []kernel.Chunk{{Content: "x", Embedding: unitVec(0)}})
	if !errors.Is(err, kernel.ErrNotFound) {
		t.Errorf("AddChunks() = %v, want ErrNotFound", err)
	}
	if _, err := s.ListChunks(ctx, missing); !errors.Is(err, kernel.ErrNotFound) {
		t.Errorf("ListChunks() = %v, want ErrNotFound", err)
	}
	if _, err := s.SearchChunks(ctx, missing, unitVec(0), 5); !errors.Is(err, kernel.ErrNotFound) {
		t.Errorf("SearchChunks() = %v, want ErrNotFound", err)
	}
	err = s.AppendTurn(ctx, &kernel.ConversationTurn{KernelID: missing, Query: "q", Answer: "a"})
	if !errors.Is(err, kernel.ErrNotFound) {
		t.Errorf("AppendTurn() = %v, want ErrNotFound", err)
	}
}

func TestStore_AppendTurnAfterKernelDeleted(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	k, err := s.CreateKernel(ctx, "short-lived")
	if err != nil {
		t.Fatalf("CreateKernel() = %v", err)
	}
	if err := s.DeleteKernel(ctx, k.ID); err != nil {
		t.Fatalf("DeleteKernel() = %v", err)
	}

	// The lock probe must report the kernel as gone, not let the insert
	// hit a foreign key violation.
	err = s.AppendTurn(ctx, &kernel.ConversationTurn{KernelID: k.ID, Query: "q", Answer: "a"})
	if !errors.Is(err, kernel.ErrNotFound) {
		t.Errorf("AppendTurn() = %v, want ErrNotFound", err)
	}
}

func TestStore_Turns(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	k, _ := s.CreateKernel(ctx, "history")

	for i, q := range []string{"q1", "q2", "q3"} {
		turn := &kernel.ConversationTurn{
			KernelID: k.ID,
			Query:    q,
			Answer:   "a",
			Decision: "PASS",
			TopScore: float32(i) / 10,
			Retrieved: []kernel.RetrievedChunk{
				{ChunkID: uuid.New(), Score: 0.9},
			},
		}
		if err := s.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn(%q) = %v", q, err)
		}
		if turn.ID == uuid.Nil || turn.CreatedAt.IsZero() {
			t.Fatalf("AppendTurn(%q) did not populate id/timestamp", q)
		}
	}

	turns, err := s.ListTurns(ctx, k.ID, 2)
	if err != nil {
		t.Fatalf("ListTurns() = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("ListTurns() returned %d, want 2", len(turns))
	}
	if turns[0].Query != "q3" {
		t.Errorf("newest turn = %q, want q3", turns[0].Query)
	}
	if len(turns[0].Retrieved) != 1 {
		t.Errorf("retrieved round-trip lost data: %+v", turns[0].Retrieved)
	}
}

func TestStore_ReplaceContradictions(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	k, _ := s.CreateKernel(ctx, "claims")
	chunks := []kernel.Chunk{
		{Source: "a", Position: 0, Content: "x is safe", Embedding: unitVec(0)},
		{Source: "b", Position: 0, Content: "x is dangerous", Embedding: unitVec(0)},
	}
	if err := s.AddChunks(ctx, k.ID, chunks); err != nil {
		t.Fatalf("AddChunks() = %v", err)
	}

	edges := []kernel.ContradictionEdge{{
		ChunkA:     chunks[0].ID,
		ChunkB:     chunks[1].ID,
		PoleA:      "safe",
		PoleB:      "dangerous",
		Confidence: 0.8,
	}}
	if err := s.ReplaceContradictions(ctx, k.ID, edges); err != nil {
		t.Fatalf("ReplaceContradictions() = %v", err)
	}

	got, err := s.ListContradictions(ctx, k.ID)
	if err != nil {
		t.Fatalf("ListContradictions() = %v", err)
	}
	if len(got) != 1 || got[0].PoleA != "safe" || got[0].PoleB != "dangerous" {
		t.Fatalf("ListContradictions() = %+v", got)
	}

	// A rebuild with no edges clears the old set.
	if err := s.ReplaceContradictions(ctx, k.ID, nil); err != nil {
		t.Fatalf("ReplaceContradictions(nil) = %v", err)
	}
	got, err = s.ListContradictions(ctx, k.ID)
	if err != nil {
		t.Fatalf("ListContradictions() = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("edges after empty replace = %d, want 0", len(got))
	}
}

func TestStore_DeleteKernelCascades(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	k, _ := s.CreateKernel(ctx, "doomed")
	chunks := []kernel.Chunk{{Source: "a", Position: 0, Content: "c", Embedding: unitVec(0)}}
	if err := s.AddChunks(ctx, k.ID, chunks); err != nil {
		t.Fatalf("AddChunks() = %v", err)
	}
	if err := s.AppendTurn(ctx, &kernel.ConversationTurn{
		KernelID: k.ID, Query: "q", Answer: "a", Decision: "PASS",
	}); err != nil {
		t.Fatalf("AppendTurn() = %v", err)
	}

	if err := s.DeleteKernel(ctx, k.ID); err != nil {
		t.Fatalf("DeleteKernel() = %v", err)
	}

	var count int
	if err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE kernel_id = $1`, k.ID).Scan(&count); err != nil {
		t.Fatalf("counting chunks: %v", err)
	}
	if count != 0 {
		t.Errorf("chunks after cascade delete = %d, want 0", count)
	}
	if err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM conversation_turns WHERE kernel_id = $1`, k.ID).Scan(&count); err != nil {
		t.Fatalf("counting turns: %v", err)
	}
	if count != 0 {
		t.Errorf("turns after cascade delete = %d, want 0", count)
	}
}
