package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// CollectionPrefix namespaces the per-vector-type collections.
	// Default: "discovery".
	CollectionPrefix string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "discovery"
	}
}

// ChromemStore implements Store using chromem-go, an embeddable vector
// database with no external service dependency. One collection per vector
// type, documents keyed by resource ID.
//
// chromem keeps vectors normalized internally, so its reported similarity is
// the compare-time-normalized cosine this interface requires.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu   sync.Mutex
	dims map[registry.VectorType]int
}

// NewChromemStore creates a chromem-backed store. With a non-empty Path the
// database persists across restarts, which is what lets disabled resources
// keep their vectors for later re-enabling.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	config.ApplyDefaults()

	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db at %s: %w", config.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
		dims:   make(map[registry.VectorType]int),
	}, nil
}

// rejectEmbeddingFunc guards against chromem computing embeddings itself;
// this store always supplies them explicitly.
func rejectEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embeddings must be supplied explicitly")
}

func (s *ChromemStore) collectionName(vectorType registry.VectorType) string {
	return fmt.Sprintf("%s_%s", s.config.CollectionPrefix, vectorType)
}

func (s *ChromemStore) collection(vectorType registry.VectorType) (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(s.collectionName(vectorType), nil, rejectEmbeddingFunc)
}

// checkDimension enforces one dimensionality per vector type.
func (s *ChromemStore) checkDimension(vectorType registry.VectorType, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if known, ok := s.dims[vectorType]; ok {
		if known != dim {
			return fmt.Errorf("%w: vector type %q has dimension %d, got %d",
				ErrDimensionMismatch, vectorType, known, dim)
		}
		return nil
	}
	s.dims[vectorType] = dim
	return nil
}

// Upsert writes an embedding for (resourceID, vectorType). chromem replaces
// the document under the collection lock, so the swap is atomic for readers.
func (s *ChromemStore) Upsert(ctx context.Context, resourceID string, vectorType registry.VectorType, embedding []float32, modelID string) error {
	if len(embedding) == 0 {
		return ErrEmptyVector
	}
	if err := s.checkDimension(vectorType, len(embedding)); err != nil {
		return err
	}

	col, err := s.collection(vectorType)
	if err != nil {
		return fmt.Errorf("getting collection for %s: %w", vectorType, err)
	}

	doc := chromem.Document{
		ID:        resourceID,
		Embedding: embedding,
		Content:   resourceID,
		Metadata: map[string]string{
			"model_id": modelID,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upserting %s/%s: %w", resourceID, vectorType, err)
	}
	return nil
}

// Search queries the vector type's collection and returns hits at or above
// the threshold, re-sorted for deterministic tie-breaking.
func (s *ChromemStore) Search(ctx context.Context, query []float32, vectorType registry.VectorType, threshold float32, limit int) ([]Hit, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}

	col, err := s.collection(vectorType)
	if err != nil {
		return nil, fmt.Errorf("getting collection for %s: %w", vectorType, err)
	}

	count := col.Count()
	if count == 0 {
		return []Hit{}, nil
	}

	// chromem rejects nResults above the document count; ask for everything
	// and trim after the threshold filter so the limit applies to qualifying
	// hits only.
	n := count
	results, err := col.QueryEmbedding(ctx, normalize(query), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection for %s: %w", vectorType, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		if res.Similarity >= threshold {
			hits = append(hits, Hit{ResourceID: res.ID, Similarity: res.Similarity})
		}
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete removes the resource's document from every vector type collection.
func (s *ChromemStore) Delete(ctx context.Context, resourceID string) error {
	for _, vectorType := range registry.AllVectorTypes() {
		col, err := s.collection(vectorType)
		if err != nil {
			return fmt.Errorf("getting collection for %s: %w", vectorType, err)
		}
		if col.Count() == 0 {
			continue
		}
		if err := col.Delete(ctx, nil, nil, resourceID); err != nil {
			return fmt.Errorf("deleting %s from %s: %w", resourceID, vectorType, err)
		}
	}
	return nil
}

// Close is a no-op; chromem persists incrementally.
func (s *ChromemStore) Close() error {
	return nil
}
