package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// QdrantConfig holds configuration for the remote qdrant backend.
type QdrantConfig struct {
	// Host is the qdrant server hostname or IP address.
	Host string

	// Port is the qdrant gRPC port (not the HTTP REST port).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// CollectionPrefix namespaces the per-vector-type collections.
	CollectionPrefix string

	// Dimension is the embedding dimension used when creating collections.
	Dimension int

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int

	// DialTimeout bounds the initial health check.
	DialTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "discovery"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store against a remote qdrant instance over gRPC.
// One collection per vector type; points carry the resource ID in their
// payload, with a deterministic UUID derived from it as point ID so upserts
// are idempotent.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// collections caches created collection names.
	collections sync.Map
}

// NewQdrantStore connects to qdrant and verifies the connection.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

func (s *QdrantStore) collectionName(vectorType registry.VectorType) string {
	return fmt.Sprintf("%s_%s", s.config.CollectionPrefix, vectorType)
}

// ensureCollection creates the vector type's collection on first use.
func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	if _, ok := s.collections.Load(name); ok {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.config.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	}

	s.collections.Store(name, true)
	return nil
}

// pointID derives a stable UUID from the resource ID so repeated upserts hit
// the same point.
func pointID(resourceID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("discoveryd/"+resourceID)).String()
}

// Upsert writes an embedding for (resourceID, vectorType). Qdrant upserts are
// atomic per point; concurrent writers resolve last-write-wins server-side.
func (s *QdrantStore) Upsert(ctx context.Context, resourceID string, vectorType registry.VectorType, embedding []float32, modelID string) error {
	if len(embedding) == 0 {
		return ErrEmptyVector
	}
	if len(embedding) != s.config.Dimension {
		return fmt.Errorf("%w: configured dimension %d, got %d",
			ErrDimensionMismatch, s.config.Dimension, len(embedding))
	}

	name := s.collectionName(vectorType)
	if err := s.ensureCollection(ctx, name); err != nil {
		return err
	}

	payload := map[string]*qdrant.Value{
		"resource_id": {Kind: &qdrant.Value_StringValue{StringValue: resourceID}},
		"model_id":    {Kind: &qdrant.Value_StringValue{StringValue: modelID}},
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(pointID(resourceID)),
				Vectors: qdrant.NewVectors(embedding...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting %s/%s: %w", resourceID, vectorType, err)
	}
	return nil
}

// Search queries qdrant with the similarity floor pushed down as a score
// threshold, then re-sorts locally for deterministic tie-breaking.
func (s *QdrantStore) Search(ctx context.Context, query []float32, vectorType registry.VectorType, threshold float32, limit int) ([]Hit, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}

	name := s.collectionName(vectorType)
	if err := s.ensureCollection(ctx, name); err != nil {
		return nil, err
	}

	fetch := uint64(limit)
	if limit <= 0 {
		fetch = 64
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(fetch),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", name, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, point := range results {
		if point.Score < threshold {
			continue
		}
		resourceID := ""
		if v, ok := point.Payload["resource_id"]; ok {
			if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				resourceID = sv.StringValue
			}
		}
		if resourceID == "" {
			s.logger.Warn("qdrant point missing resource_id payload",
				zap.String("collection", name))
			continue
		}
		hits = append(hits, Hit{ResourceID: resourceID, Similarity: point.Score})
	}

	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete removes the resource's points from every vector type collection.
func (s *QdrantStore) Delete(ctx context.Context, resourceID string) error {
	for _, vectorType := range registry.AllVectorTypes() {
		name := s.collectionName(vectorType)
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("checking collection %s: %w", name, err)
		}
		if !exists {
			continue
		}

		_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							{
								ConditionOneOf: &qdrant.Condition_Field{
									Field: &qdrant.FieldCondition{
										Key: "resource_id",
										Match: &qdrant.Match{
											MatchValue: &qdrant.Match_Keyword{Keyword: resourceID},
										},
									},
								},
							},
						},
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("deleting %s from %s: %w", resourceID, name, err)
		}
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
