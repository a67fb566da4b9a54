// Package vectorstore defines the vector storage interface for the matching
// engine and its backends.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/discoveryd/internal/registry"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyVector indicates an empty or nil embedding.
	ErrEmptyVector = errors.New("empty or nil embedding")

	// ErrDimensionMismatch is returned when an embedding's dimension does
	// not match the dimension already established for its vector type.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrConnectionFailed indicates a backend connection failure.
	ErrConnectionFailed = errors.New("failed to connect to vector store backend")
)

// VectorRecord is one stored embedding, keyed by (resource_id, vector_type).
type VectorRecord struct {
	ResourceID string
	VectorType registry.VectorType
	Embedding  []float32
	ModelID    string
	UpdatedAt  time.Time
}

// Hit is one similarity search result.
type Hit struct {
	ResourceID string
	Similarity float32
}

// Store is the vector storage contract used by the vectorization pipeline
// (writes) and the matcher (reads).
//
// Implementations must make Upsert atomic per record: a concurrently running
// Search observes either the previous embedding or the new one, never a
// partial write. Concurrent upserts to the same key resolve last-write-wins
// and are never surfaced as conflicts.
//
// Search guarantees:
//   - similarity is cosine, normalized at compare time, bounded in [-1, 1];
//   - results are ordered by similarity descending, ties broken by
//     ResourceID ascending;
//   - entries with similarity below the threshold are excluded, never
//     returned with a marker.
//
// The MemoryStore scans linearly and is the bootstrap implementation; the
// chromem and qdrant backends provide index-backed search behind the same
// interface, so callers never change when the index strategy does.
type Store interface {
	// Upsert writes an embedding for (resourceID, vectorType).
	// Idempotent; last-write-wins.
	Upsert(ctx context.Context, resourceID string, vectorType registry.VectorType, embedding []float32, modelID string) error

	// Search returns up to limit resources whose vectorType embedding has
	// cosine similarity >= threshold with the query vector.
	Search(ctx context.Context, query []float32, vectorType registry.VectorType, threshold float32, limit int) ([]Hit, error)

	// Delete removes all vector types stored for a resource.
	Delete(ctx context.Context, resourceID string) error

	// Close releases backend resources.
	Close() error
}
