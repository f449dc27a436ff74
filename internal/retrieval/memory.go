package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kernelworks/kernelstudio/internal/kernel"
	"github.com/kernelworks/kernelstudio/internal/store"
)

// MemoryIndex is a linear-scan in-memory Index. It mirrors the ordering
// contract of the pgvector store and is mainly useful in tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	chunks  map[uuid.UUID][]kernel.Chunk
	nextSeq int64
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make(map[uuid.UUID][]kernel.Chunk)}
}

// CreateKernel registers an empty kernel.
func (m *MemoryIndex) CreateKernel(kernelID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[kernelID]; !ok {
		m.chunks[kernelID] = []kernel.Chunk{}
	}
}

// AddChunks appends chunks to a kernel, assigning seq in arrival order.
func (m *MemoryIndex) AddChunks(_ context.Context, kernelID uuid.UUID, chunks []kernel.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chunks[kernelID]; !ok {
		return fmt.Errorf("kernel %s: %w", kernelID, kernel.ErrNotFound)
	}
	for i := range chunks {
		c := chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.KernelID = kernelID
		m.nextSeq++
		c.Seq = m.nextSeq
		m.chunks[kernelID] = append(m.chunks[kernelID], c)
	}
	return nil
}

// SearchChunks scans the kernel's chunks, scoring by dot product. Stored
// vectors are normalized, so dot product equals cosine similarity.
func (m *MemoryIndex) SearchChunks(_ context.Context, kernelID uuid.UUID, query []float32, topK int) ([]store.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks, ok := m.chunks[kernelID]
	if !ok {
		return nil, fmt.Errorf("kernel %s: %w", kernelID, kernel.ErrNotFound)
	}

	results := make([]store.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, store.SearchResult{Chunk: c, Score: dot(query, c.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Seq < results[j].Chunk.Seq
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := range n {
		sum += a[i] * b[i]
	}
	return sum
}
