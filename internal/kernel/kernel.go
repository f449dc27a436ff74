// Package kernel defines the core data model of Kernel Studio.
//
// A Kernel is a tenant workspace: it exclusively owns the Chunks ingested into
// it and its conversation history. ContradictionEdges and Graphs are derived
// caches over Chunks — they reference chunks by ID only and may be rebuilt at
// any time.
package kernel

import (
	"time"

	"github.com/google/uuid"
)

// Kernel is a tenant workspace holding ingested documents and chat history.
type Kernel struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	// Populated on detail reads; zero on list responses.
	ChunkCount int `json:"chunk_count,omitempty"`
	TurnCount  int `json:"turn_count,omitempty"`
}

// Chunk is a bounded unit of ingested text with its embedding vector.
//
// Seq is assigned by the store in ingestion order and is strictly increasing
// within a kernel. Retrieval uses it to break score ties deterministically
// (earlier chunk wins).
type Chunk struct {
	ID        uuid.UUID `json:"id"`
	KernelID  uuid.UUID `json:"kernel_id"`
	Source    string    `json:"source"`
	Position  int       `json:"position"`
	Seq       int64     `json:"seq"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// RetrievedChunk records one retrieval hit on a conversation turn.
type RetrievedChunk struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Score   float32   `json:"score"`
}

// ConversationTurn records a single query/answer exchange, the chunks that
// were retrieved for it, and the gate decision that shaped the answer.
// Turns are append-only and ordered by arrival within a kernel.
type ConversationTurn struct {
	ID        uuid.UUID        `json:"id"`
	KernelID  uuid.UUID        `json:"kernel_id"`
	Query     string           `json:"query"`
	Answer    string           `json:"answer"`
	Decision  string           `json:"decision"`
	TopScore  float32          `json:"top_score"`
	Retrieved []RetrievedChunk `json:"retrieved"`
	CreatedAt time.Time        `json:"created_at"`
}

// ContradictionEdge flags two chunks as semantically conflicting.
// Derived and recomputable; holds chunk IDs, never ownership.
type ContradictionEdge struct {
	ID         uuid.UUID `json:"id"`
	KernelID   uuid.UUID `json:"kernel_id"`
	ChunkA     uuid.UUID `json:"chunk_a"`
	ChunkB     uuid.UUID `json:"chunk_b"`
	PoleA      string    `json:"pole_a"`
	PoleB      string    `json:"pole_b"`
	Confidence float32   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// GraphNode is a read-side projection of a chunk for visualization.
type GraphNode struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
	// Degree counts edges touching this node.
	Degree int `json:"degree"`
}

// GraphEdge links two nodes whose chunks are semantically close.
type GraphEdge struct {
	Source     uuid.UUID `json:"source"`
	Target     uuid.UUID `json:"target"`
	Weight     float32   `json:"weight"`
	Contradict bool      `json:"contradiction"`
}

// Graph is the derived concept graph over a kernel's chunks.
// It is never mutated in place; builds replace it wholesale.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}
