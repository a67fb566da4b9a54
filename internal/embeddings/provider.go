// Package embeddings provides embedding generation for the matching engine.
//
// The engine never computes embeddings itself: Provider is the contract to an
// external vectorization service. The TEI provider is the default; anything
// producing fixed-dimension vectors can be substituted.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text or an error for the whole call;
	// per-item outcomes are the batch layer's concern (see EmbedBatch).
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ErrorKind classifies embedding failures.
type ErrorKind string

const (
	// KindTimeout marks items whose batch exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindProviderFailure marks items rejected by the provider.
	KindProviderFailure ErrorKind = "provider_failure"
)

// EmbedError is a per-item embedding failure.
type EmbedError struct {
	Kind ErrorKind
	Err  error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed error (%s): %v", e.Kind, e.Err)
}

func (e *EmbedError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the failure was a batch timeout.
func (e *EmbedError) IsTimeout() bool {
	return e.Kind == KindTimeout
}

// NewProvider creates an embedding provider from configuration.
func NewProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewTEIProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
