// Package config provides configuration loading for discoveryd.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// WeightEpsilon is the tolerance when checking that a weight mapping sums to 1.0.
const WeightEpsilon = 1e-6

// ErrInvalidConfig indicates a configuration error that must prevent startup.
var ErrInvalidConfig = errors.New("invalid configuration")

// KnownVectorTypes enumerates the vector facets embedded per resource.
var KnownVectorTypes = []string{"name", "description", "capabilities", "composite"}

// KnownSignals enumerates the confidence signals fused by the matcher.
var KnownSignals = []string{"similarity", "usage_history", "performance", "context"}

// Config is the root configuration for discoveryd.
type Config struct {
	Resources []ResourceConfig `koanf:"resources"`
	Vector    VectorConfig     `koanf:"vector_config"`
	Matcher   MatcherConfig    `koanf:"matcher_config"`
	Trigger   TriggerConfig    `koanf:"trigger_config"`
	Embedding EmbeddingConfig  `koanf:"embedding"`
	Store     StoreConfig      `koanf:"store"`
	NATS      NATSConfig       `koanf:"nats"`
	Server    ServerConfig     `koanf:"server"`
	Logging   LoggingConfig    `koanf:"logging"`
}

// ResourceConfig declares one matchable resource.
type ResourceConfig struct {
	// Table is the source table or collection backing the resource.
	// The resource ID is derived from it.
	Table string `koanf:"table"`

	// Type is the resource type: TEXT2SQL, DATABASE, API, TOOL.
	Type string `koanf:"type"`

	// Fields is the ordered list of field names used to build
	// vectorizable content.
	Fields []string `koanf:"fields"`

	// Tool is the downstream capability invoked on a match.
	Tool string `koanf:"tool"`

	// Description is free text describing the resource.
	Description string `koanf:"description"`

	// Enabled controls participation in matching. Disabled resources
	// keep their vectors but never appear in results.
	Enabled bool `koanf:"enabled"`
}

// VectorConfig holds search and embedding-batch parameters.
type VectorConfig struct {
	SimilarityThreshold float32 `koanf:"similarity_threshold"`
	MaxResults          int     `koanf:"max_results"`
	BatchSize           int     `koanf:"batch_size"`
	TimeoutSeconds      int     `koanf:"timeout_seconds"`

	// Workers bounds re-index parallelism in the vectorization pipeline.
	Workers int `koanf:"workers"`

	// Templates overrides the per-vector-type content templates used to
	// build embeddable text from a resource descriptor. Placeholders:
	// {id}, {table}, {tool}, {description}, {fields}, {type}.
	Templates map[string]string `koanf:"templates"`
}

// Timeout returns the per-batch embedding timeout.
func (v VectorConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSeconds) * time.Second
}

// MatcherConfig holds the weight profiles used for confidence fusion.
type MatcherConfig struct {
	// ConfidenceWeights maps signal name -> weight. Must sum to 1.0.
	ConfidenceWeights map[string]float64 `koanf:"confidence_weights"`

	// VectorTypeWeights is the default vector_type -> weight mapping,
	// used for resource types without a dedicated profile. Must sum to 1.0.
	VectorTypeWeights map[string]float64 `koanf:"vector_type_weights"`

	// ResourceTypeWeights maps resource type -> vector_type weights.
	// Each inner mapping must sum to 1.0.
	ResourceTypeWeights map[string]map[string]float64 `koanf:"resource_type_weights"`
}

// TriggerConfig holds change-notification parameters.
type TriggerConfig struct {
	TriggerPrefix       string `koanf:"trigger_prefix"`
	NotifyChannelPrefix string `koanf:"notify_channel_prefix"`
	EnableRealtime      bool   `koanf:"enable_realtime"`
	BatchDelayMs        int    `koanf:"batch_delay_ms"`
}

// BatchDelay returns the debounce window duration.
func (t TriggerConfig) BatchDelay() time.Duration {
	return time.Duration(t.BatchDelayMs) * time.Millisecond
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the implementation. Currently "tei".
	Provider string `koanf:"provider"`

	// BaseURL is the embedding service endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// Dimension is the embedding dimension produced by Model.
	Dimension int `koanf:"dimension"`

	// APIKey is an optional bearer token for the provider.
	APIKey Secret `koanf:"api_key"`

	// MaxRetries bounds per-item retries after a batch failure.
	MaxRetries int `koanf:"max_retries"`

	// RateLimit caps embedding requests per second. 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is one of "memory", "chromem", "qdrant".
	Backend string `koanf:"backend"`

	// Path is the persistence directory for the chromem backend.
	Path string `koanf:"path"`

	// Host and Port locate the qdrant gRPC endpoint.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// NATSConfig locates the change-notification bus.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger parameters.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration with production-ready defaults. Resources
// and weight profiles have no defaults; they must come from the config file.
func Default() *Config {
	return &Config{
		Vector: VectorConfig{
			SimilarityThreshold: 0.3,
			MaxResults:          5,
			BatchSize:           32,
			TimeoutSeconds:      30,
			Workers:             4,
		},
		Trigger: TriggerConfig{
			TriggerPrefix:       "discovery_trigger_",
			NotifyChannelPrefix: "discovery_notify_",
			EnableRealtime:      true,
			BatchDelayMs:        1000,
		},
		Embedding: EmbeddingConfig{
			Provider:   "tei",
			BaseURL:    "http://localhost:8080",
			Model:      "BAAI/bge-small-en-v1.5",
			Dimension:  384,
			MaxRetries: 3,
		},
		Store: StoreConfig{
			Backend: "memory",
			Host:    "localhost",
			Port:    6334,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Server: ServerConfig{
			Port:            8765,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration. Any error is fatal at load time; the
// process must not start with an invalid weight profile or an unmapped
// resource type.
func (c *Config) Validate() error {
	if c.Vector.SimilarityThreshold < -1 || c.Vector.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold %v outside [-1, 1]",
			ErrInvalidConfig, c.Vector.SimilarityThreshold)
	}
	if c.Vector.MaxResults <= 0 {
		return fmt.Errorf("%w: max_results must be positive", ErrInvalidConfig)
	}
	if c.Vector.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	}
	if c.Vector.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout_seconds must be positive", ErrInvalidConfig)
	}
	if c.Trigger.BatchDelayMs < 0 {
		return fmt.Errorf("%w: batch_delay_ms cannot be negative", ErrInvalidConfig)
	}
	if c.Vector.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	for key := range c.Vector.Templates {
		if !containsKey(KnownVectorTypes, key) {
			return fmt.Errorf("%w: templates contains unknown vector type %q", ErrInvalidConfig, key)
		}
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfig)
	}

	if err := validateWeights("confidence_weights", c.Matcher.ConfidenceWeights, KnownSignals); err != nil {
		return err
	}
	if err := validateWeights("vector_type_weights", c.Matcher.VectorTypeWeights, KnownVectorTypes); err != nil {
		return err
	}
	for rtype, weights := range c.Matcher.ResourceTypeWeights {
		name := fmt.Sprintf("resource_type_weights.%s", rtype)
		if err := validateWeights(name, weights, KnownVectorTypes); err != nil {
			return err
		}
	}

	// Every declared resource type must have a weight profile, either a
	// dedicated one or the default vector_type_weights.
	for _, r := range c.Resources {
		if r.Table == "" {
			return fmt.Errorf("%w: resource with empty table", ErrInvalidConfig)
		}
		if r.Type == "" {
			return fmt.Errorf("%w: resource %q has no type", ErrInvalidConfig, r.Table)
		}
		if _, ok := c.Matcher.ResourceTypeWeights[r.Type]; !ok {
			if len(c.Matcher.VectorTypeWeights) == 0 {
				return fmt.Errorf("%w: resource type %q has no weight profile and no default vector_type_weights",
					ErrInvalidConfig, r.Type)
			}
		}
		if r.Tool == "" {
			return fmt.Errorf("%w: resource %q has no tool", ErrInvalidConfig, r.Table)
		}
	}

	return nil
}

// VectorWeightsFor returns the vector-type weight mapping for a resource type,
// falling back to the default mapping when no dedicated profile exists.
func (c *Config) VectorWeightsFor(resourceType string) map[string]float64 {
	if w, ok := c.Matcher.ResourceTypeWeights[resourceType]; ok {
		return w
	}
	return c.Matcher.VectorTypeWeights
}

// validateWeights checks that a weight mapping is non-empty, uses only known
// keys, has no negative entries, and sums to 1.0 within WeightEpsilon.
// Profiles failing the check are rejected, never normalized.
func validateWeights(name string, weights map[string]float64, known []string) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, name)
	}
	for key, w := range weights {
		if !containsKey(known, key) {
			return fmt.Errorf("%w: %s contains unknown key %q", ErrInvalidConfig, name, key)
		}
		if w < 0 {
			return fmt.Errorf("%w: %s[%s] is negative", ErrInvalidConfig, name, key)
		}
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > WeightEpsilon {
		return fmt.Errorf("%w: %s sums to %v, want 1.0", ErrInvalidConfig, name, sum)
	}
	return nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
