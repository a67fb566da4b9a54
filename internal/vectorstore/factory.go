package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"go.uber.org/zap"
)

// NewFromConfig creates the configured Store backend.
//
// Backends are interchangeable behind the Store interface: "memory" is the
// exact-scan bootstrap, "chromem" an embedded persistent index, "qdrant" a
// remote ANN index.
func NewFromConfig(cfg config.StoreConfig, embedDim int, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "memory", "":
		store = NewMemoryStore(logger)
	case "chromem":
		store, err = NewChromemStore(ChromemConfig{Path: cfg.Path}, logger)
	case "qdrant":
		store, err = NewQdrantStore(QdrantConfig{
			Host:      cfg.Host,
			Port:      cfg.Port,
			Dimension: embedDim,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(store), nil
}
