package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/embed"
	"github.com/kernelworks/kernelstudio/internal/kernel"
	"github.com/kernelworks/kernelstudio/internal/testutil"
)

// fakeChunkStore records batches and can fail after a number of calls.
type fakeChunkStore struct {
	batches   [][]kernel.Chunk
	failAfter int // fail on call n (1-based); 0 = never
	calls     int
	onAdd     func()
}

func (f *fakeChunkStore) AddChunks(_ context.Context, _ uuid.UUID, chunks []kernel.Chunk) error {
	f.calls++
	if f.onAdd != nil {
		f.onAdd()
	}
	if f.failAfter > 0 && f.calls >= f.failAfter {
		return errors.New("store unavailable")
	}
	batch := make([]kernel.Chunk, len(chunks))
	copy(batch, chunks)
	f.batches = append(f.batches, batch)
	return nil
}

func newTestPipeline(t *testing.T, store ChunkStore) *Pipeline {
	t.Helper()
	embedder, err := embed.NewLocal(64)
	if err != nil {
		t.Fatalf("NewLocal() = %v", err)
	}
	p, err := NewPipeline(store, embedder, NewChunker(100, 1), t.TempDir(), testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewPipeline() = %v", err)
	}
	return p
}

func TestPipeline_IngestTextDocument(t *testing.T) {
	store := &fakeChunkStore{}
	p := newTestPipeline(t, store)

	doc := "First sentence about physics. Second sentence about chemistry. " +
		"Third sentence about biology. Fourth sentence about geology."
	res, err := p.Ingest(context.Background(), uuid.New(), "notes.txt", strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if res.Source != "notes.txt" {
		t.Errorf("Source = %q, want notes.txt", res.Source)
	}
	if res.Chunks < 2 {
		t.Fatalf("Chunks = %d, want >= 2 for a multi-chunk document", res.Chunks)
	}

	var all []kernel.Chunk
	for _, b := range store.batches {
		all = append(all, b...)
	}
	if len(all) != res.Chunks {
		t.Fatalf("persisted %d chunks, result says %d", len(all), res.Chunks)
	}
	for i, c := range all {
		if c.Position != i {
			t.Errorf("chunk %d has Position %d", i, c.Position)
		}
		if c.Source != "notes.txt" {
			t.Errorf("chunk %d Source = %q", i, c.Source)
		}
		if len(c.Embedding) != 64 {
			t.Errorf("chunk %d embedding width = %d, want 64", i, len(c.Embedding))
		}
	}
}

func TestPipeline_UnsupportedFormat(t *testing.T) {
	p := newTestPipeline(t, &fakeChunkStore{})

	_, err := p.Ingest(context.Background(), uuid.New(), "photo.jpeg", strings.NewReader("x"))
	if !errors.Is(err, kernel.ErrUnprocessableDocument) {
		t.Fatalf("Ingest() = %v, want ErrUnprocessableDocument", err)
	}
}

func TestPipeline_EmptyDocument(t *testing.T) {
	p := newTestPipeline(t, &fakeChunkStore{})

	_, err := p.Ingest(context.Background(), uuid.New(), "empty.txt", strings.NewReader("  \n "))
	if !errors.Is(err, kernel.ErrUnprocessableDocument) {
		t.Fatalf("Ingest() = %v, want ErrUnprocessableDocument", err)
	}
}

func TestPipeline_StoreFailureSurfaced(t *testing.T) {
	store := &fakeChunkStore{failAfter: 1}
	p := newTestPipeline(t, store)

	_, err := p.Ingest(context.Background(), uuid.New(), "doc.txt",
		strings.NewReader("A sentence. Another sentence."))
	if err == nil {
		t.Fatal("Ingest() = nil error, want store failure")
	}
	if !strings.Contains(err.Error(), "store unavailable") {
		t.Errorf("error does not wrap store failure: %v", err)
	}
}

func TestPipeline_CanceledContext(t *testing.T) {
	p := newTestPipeline(t, &fakeChunkStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Ingest(ctx, uuid.New(), "doc.txt", strings.NewReader("A sentence."))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ingest() = %v, want context.Canceled", err)
	}
}

func TestPipeline_LockReleasedBeforePersistence(t *testing.T) {
	// The scratch directory lock covers spooling and extraction only.
	// By the time chunks reach the store another ingest must be able to
	// take the lock, otherwise ingests into different kernels serialize
	// end to end.
	dataRoot := t.TempDir()
	embedder, err := embed.NewLocal(64)
	if err != nil {
		t.Fatalf("NewLocal() = %v", err)
	}

	store := &fakeChunkStore{}
	store.onAdd = func() {
		probe := flock.New(filepath.Join(dataRoot, "ingest.lock"))
		locked, err := probe.TryLock()
		if err != nil {
			t.Errorf("probing ingest lock: %v", err)
			return
		}
		if !locked {
			t.Error("ingest lock still held during persistence")
			return
		}
		_ = probe.Unlock()
	}

	p, err := NewPipeline(store, embedder, NewChunker(100, 1), dataRoot, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewPipeline() = %v", err)
	}

	if _, err := p.Ingest(context.Background(), uuid.New(), "doc.txt",
		strings.NewReader("A sentence. Another sentence.")); err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if store.calls == 0 {
		t.Fatal("store was never called")
	}
}

func TestPipeline_PartialBatchesSurvive(t *testing.T) {
	// A very long document forces multiple embed/store batches; the
	// second batch fails but the first stays persisted.
	var sb strings.Builder
	for range 200 {
		sb.WriteString("A reasonably long sentence that fills the chunk window quickly. ")
	}

	store := &fakeChunkStore{failAfter: 2}
	p := newTestPipeline(t, store)

	_, err := p.Ingest(context.Background(), uuid.New(), "big.txt", strings.NewReader(sb.String()))
	if err == nil {
		t.Fatal("Ingest() = nil error, want failure on second batch")
	}
	if len(store.batches) != 1 {
		t.Fatalf("persisted batches = %d, want 1 (checkpoint before failure)", len(store.batches))
	}
	if len(store.batches[0]) == 0 {
		t.Fatal("first batch is empty")
	}
}
