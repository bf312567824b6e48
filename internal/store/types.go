// Package store provides the persistence layer for the retrieval engine:
// vector storage (HNSW), chunk metadata (SQLite), and the bleve-backed
// lexical scorer used as a correction signal over vector candidates.
package store

import (
	"context"
	"fmt"
	"time"
)

// Chunk is a retrievable unit of knowledge-base content. Chunks are derived
// from ingested documents by the corpus mutation pipeline and are the only
// entities the indexes know about.
type Chunk struct {
	ID         string            // Stable derived ID, unique within the corpus
	DocumentID string            // ID of the parent document
	Index      int               // Position of this chunk within its document
	Title      string            // Parent document title (may be empty)
	Source     string            // Source label (e.g., "faq/cards.md")
	Page       int               // Page or position hint, 0 if unknown
	Content    string            // Text span
	Metadata   map[string]string // Normalized scalar metadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Raw L2 distance (unbounded)
	Score    float32 // Similarity 1/(1+distance), in (0,1]
}

// VectorIndex provides approximate nearest-neighbor search over chunk
// embeddings. One shared instance per corpus; concurrent reads are allowed,
// writes must be serialized by the mutation pipeline.
type VectorIndex interface {
	// Upsert inserts vectors with their IDs. Existing IDs are replaced.
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Enumerate returns up to limit chunk IDs currently in the index,
	// sorted. limit <= 0 means all. Used to cross-check the vector index
	// against the metadata store.
	Enumerate(limit int) []string

	// Count returns the number of vectors.
	Count() int

	// Reset drops all vectors and reinitializes an empty index.
	Reset() error

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// MetadataStore persists chunk content and metadata in SQLite. It is the
// source of truth for chunk text; the lexical index is rebuilt from it.
type MetadataStore interface {
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	DeleteChunks(ctx context.Context, ids []string) error

	// AllChunks returns up to limit chunks (limit <= 0 means all),
	// ordered by ID for determinism.
	AllChunks(ctx context.Context, limit int) ([]*Chunk, error)

	Count(ctx context.Context) (int, error)

	// Reset drops all persisted chunks. Idempotent.
	Reset(ctx context.Context) error

	Close() error
}

// LexicalScorer scores a candidate subset against query tokens. It is a
// correction signal, not an independent retrieval path: Score only ever
// sees the vector stage's candidate window.
type LexicalScorer interface {
	// Build indexes the corpus. Replaces any previously built index.
	Build(ctx context.Context, chunks []*Chunk) error

	// Score computes normalized [0,1] scores for the given candidates.
	// Scores are min-max normalized across the candidate subset; if all
	// raw scores are equal and non-zero they normalize to 1.0. Candidates
	// with no lexical match score 0. An unbuilt or failed index returns
	// an empty map; callers degrade to vector-only fusion.
	Score(ctx context.Context, query string, candidateIDs []string) (map[string]float64, error)

	// DocCount returns the number of indexed documents.
	DocCount() int

	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch between the
// embedding provider and the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
