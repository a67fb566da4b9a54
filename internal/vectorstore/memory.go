package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// MemoryStore is an exact-scan in-memory Store.
//
// It is the bootstrap backend: O(n) per search, correct for any resource
// count, fast enough until registries grow large. Records are immutable once
// stored; Upsert swaps a pointer under the write lock, so readers holding the
// read lock never see a partially-written embedding.
type MemoryStore struct {
	mu     sync.RWMutex
	byType map[registry.VectorType]map[string]*VectorRecord
	dims   map[registry.VectorType]int
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		byType: make(map[registry.VectorType]map[string]*VectorRecord),
		dims:   make(map[registry.VectorType]int),
		logger: logger,
	}
}

// Upsert writes an embedding for (resourceID, vectorType). Last-write-wins;
// a dimension differing from the type's established dimension is rejected.
func (s *MemoryStore) Upsert(ctx context.Context, resourceID string, vectorType registry.VectorType, embedding []float32, modelID string) error {
	if len(embedding) == 0 {
		return ErrEmptyVector
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// The record owns its own copy so callers can reuse their slice.
	stored := make([]float32, len(embedding))
	copy(stored, embedding)
	rec := &VectorRecord{
		ResourceID: resourceID,
		VectorType: vectorType,
		Embedding:  stored,
		ModelID:    modelID,
		UpdatedAt:  timeNow(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dim, ok := s.dims[vectorType]; ok {
		if dim != len(embedding) {
			return fmt.Errorf("%w: vector type %q has dimension %d, got %d",
				ErrDimensionMismatch, vectorType, dim, len(embedding))
		}
	} else {
		s.dims[vectorType] = len(embedding)
	}

	records, ok := s.byType[vectorType]
	if !ok {
		records = make(map[string]*VectorRecord)
		s.byType[vectorType] = records
	}
	records[resourceID] = rec
	return nil
}

// Search scans all records of a vector type and returns hits at or above the
// similarity threshold, ordered by similarity descending then ResourceID
// ascending.
func (s *MemoryStore) Search(ctx context.Context, query []float32, vectorType registry.VectorType, threshold float32, limit int) ([]Hit, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := s.byType[vectorType]
	hits := make([]Hit, 0, len(records))
	for id, rec := range records {
		sim, err := CosineSimilarity(query, rec.Embedding)
		if err != nil {
			s.mu.RUnlock()
			return nil, fmt.Errorf("comparing against %s: %w", id, err)
		}
		if sim >= threshold {
			hits = append(hits, Hit{ResourceID: id, Similarity: sim})
		}
	}
	s.mu.RUnlock()

	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Get returns the stored record for (resourceID, vectorType), if any.
// Used by tests and the pipeline's staleness checks.
func (s *MemoryStore) Get(resourceID string, vectorType registry.VectorType) (*VectorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byType[vectorType][resourceID]
	return rec, ok
}

// Delete removes all vector types stored for a resource.
func (s *MemoryStore) Delete(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, records := range s.byType {
		delete(records, resourceID)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// sortHits orders hits by similarity descending, ties by ResourceID ascending
// for deterministic results.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ResourceID < hits[j].ResourceID
	})
}
