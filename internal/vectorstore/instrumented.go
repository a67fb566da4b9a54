package vectorstore

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/discoveryd/internal/registry"
)

// InstrumentedStore wraps a Store with Prometheus instrumentation.
type InstrumentedStore struct {
	inner Store
}

// Instrument wraps a store with metrics recording.
func Instrument(inner Store) *InstrumentedStore {
	return &InstrumentedStore{inner: inner}
}

func (s *InstrumentedStore) Upsert(ctx context.Context, resourceID string, vectorType registry.VectorType, embedding []float32, modelID string) error {
	err := s.inner.Upsert(ctx, resourceID, vectorType, embedding, modelID)
	ObserveUpsert(string(vectorType), err)
	return err
}

func (s *InstrumentedStore) Search(ctx context.Context, query []float32, vectorType registry.VectorType, threshold float32, limit int) ([]Hit, error) {
	start := time.Now()
	hits, err := s.inner.Search(ctx, query, vectorType, threshold, limit)
	if err == nil {
		ObserveSearch(string(vectorType), time.Since(start), len(hits))
	}
	return hits, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, resourceID string) error {
	err := s.inner.Delete(ctx, resourceID)
	ObserveDelete(err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
