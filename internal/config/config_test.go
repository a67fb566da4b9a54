package config_test

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *config.Config {
	cfg := config.Default()
	cfg.Matcher.ConfidenceWeights = map[string]float64{
		"similarity":    0.5,
		"usage_history": 0.2,
		"performance":   0.2,
		"context":       0.1,
	}
	cfg.Matcher.VectorTypeWeights = map[string]float64{
		"name":         0.25,
		"description":  0.25,
		"capabilities": 0.25,
		"composite":    0.25,
	}
	cfg.Matcher.ResourceTypeWeights = map[string]map[string]float64{
		"DATABASE": {
			"name":         0.2,
			"description":  0.3,
			"capabilities": 0.3,
			"composite":    0.2,
		},
	}
	cfg.Resources = []config.ResourceConfig{
		{
			Table:       "orders",
			Type:        "DATABASE",
			Fields:      []string{"name", "description"},
			Tool:        "query_database",
			Description: "Customer orders",
			Enabled:     true,
		},
	}
	return cfg
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Matcher.ConfidenceWeights["similarity"] = 0.6 // sum now 1.1

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "confidence_weights")
}

func TestValidate_WeightsWithinEpsilon(t *testing.T) {
	cfg := validConfig()
	// Floating point drift well inside the tolerance must pass.
	cfg.Matcher.ConfidenceWeights["context"] = 0.1 + 1e-9

	require.NoError(t, cfg.Validate())
}

func TestValidate_ResourceTypeWeightsChecked(t *testing.T) {
	cfg := validConfig()
	cfg.Matcher.ResourceTypeWeights["DATABASE"]["name"] = 0.9

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource_type_weights.DATABASE")
}

func TestValidate_UnknownWeightKeyRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Matcher.VectorTypeWeights = map[string]float64{
		"name":    0.5,
		"flavour": 0.5,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flavour")
}

func TestValidate_NegativeWeightRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Matcher.ConfidenceWeights = map[string]float64{
		"similarity":    1.2,
		"usage_history": -0.2,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidate_MissingProfileFallsBackToDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Resources = append(cfg.Resources, config.ResourceConfig{
		Table: "api_definitions",
		Type:  "API",
		Tool:  "call_api",
	})

	// API has no dedicated profile but the default vector_type_weights exist.
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cfg.Matcher.VectorTypeWeights, cfg.VectorWeightsFor("API"))
	assert.Equal(t, cfg.Matcher.ResourceTypeWeights["DATABASE"], cfg.VectorWeightsFor("DATABASE"))
}

func TestValidate_UnmappedResourceTypeFailsFast(t *testing.T) {
	cfg := validConfig()
	cfg.Matcher.VectorTypeWeights = nil
	cfg.Matcher.ResourceTypeWeights = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidate_ThresholdBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Vector.SimilarityThreshold = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity_threshold")
}

func TestParse_YAML(t *testing.T) {
	raw := []byte(`
resources:
  - table: orders
    type: DATABASE
    fields: [name, description]
    tool: query_database
    description: Customer orders
    enabled: true
vector_config:
  similarity_threshold: 0.3
  max_results: 5
  batch_size: 16
  timeout_seconds: 20
matcher_config:
  confidence_weights:
    similarity: 0.5
    usage_history: 0.2
    performance: 0.2
    context: 0.1
  vector_type_weights:
    name: 0.25
    description: 0.25
    capabilities: 0.25
    composite: 0.25
  resource_type_weights:
    DATABASE:
      name: 0.2
      description: 0.3
      capabilities: 0.3
      composite: 0.2
trigger_config:
  trigger_prefix: discovery_trigger_
  notify_channel_prefix: discovery_notify_
  enable_realtime: true
  batch_delay_ms: 1000
`)

	cfg, err := config.Parse(raw)
	require.NoError(t, err)

	assert.Len(t, cfg.Resources, 1)
	assert.Equal(t, "orders", cfg.Resources[0].Table)
	assert.Equal(t, 16, cfg.Vector.BatchSize)
	assert.Equal(t, 20*time.Second, cfg.Vector.Timeout())
	assert.Equal(t, time.Second, cfg.Trigger.BatchDelay())
	assert.Equal(t, 0.3, cfg.Matcher.ResourceTypeWeights["DATABASE"]["description"])
}

func TestParse_RejectsBadProfile(t *testing.T) {
	raw := []byte(`
matcher_config:
  confidence_weights:
    similarity: 0.9
    usage_history: 0.9
  vector_type_weights:
    composite: 1.0
`)

	_, err := config.Parse(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d config.Duration
	require.NoError(t, d.UnmarshalText([]byte("1500ms")))
	assert.Equal(t, 1500*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
}

func TestSecret_Redaction(t *testing.T) {
	s := config.Secret("sk-very-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "very-secret")
}
