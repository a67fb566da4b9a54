package registry_test

import (
	"sync"
	"testing"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(resources ...config.ResourceConfig) *config.Config {
	cfg := config.Default()
	cfg.Resources = resources
	cfg.Matcher.ConfidenceWeights = map[string]float64{
		"similarity": 0.7, "usage_history": 0.1, "performance": 0.1, "context": 0.1,
	}
	cfg.Matcher.VectorTypeWeights = map[string]float64{
		"name": 0.25, "description": 0.25, "capabilities": 0.25, "composite": 0.25,
	}
	return cfg
}

func resourceCfg(table string, enabled bool) config.ResourceConfig {
	return config.ResourceConfig{
		Table:       table,
		Type:        "DATABASE",
		Fields:      []string{"name", "description"},
		Tool:        "query_database",
		Description: table + " table",
		Enabled:     enabled,
	}
}

func TestNew_ListAndGet(t *testing.T) {
	reg, err := registry.New(testConfig(
		resourceCfg("orders", true),
		resourceCfg("customers", false),
	), zap.NewNop())
	require.NoError(t, err)

	all := reg.List(false)
	require.Len(t, all, 2)
	assert.Equal(t, "orders", all[0].ID)
	assert.Equal(t, registry.ResourceTypeDatabase, all[0].Type)

	enabled := reg.List(true)
	require.Len(t, enabled, 1)
	assert.Equal(t, "orders", enabled[0].ID)

	desc, err := reg.Get("customers")
	require.NoError(t, err)
	assert.False(t, desc.Enabled)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestNew_DuplicateResourceRejected(t *testing.T) {
	_, err := registry.New(testConfig(
		resourceCfg("orders", true),
		resourceCfg("orders", true),
	), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestReload_AtomicSwap(t *testing.T) {
	reg, err := registry.New(testConfig(resourceCfg("orders", true)), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, reg.Reload(testConfig(
		resourceCfg("orders", true),
		resourceCfg("invoices", true),
	)))

	assert.Len(t, reg.List(true), 2)
}

func TestReload_FailureKeepsPreviousSnapshot(t *testing.T) {
	reg, err := registry.New(testConfig(resourceCfg("orders", true)), zap.NewNop())
	require.NoError(t, err)

	bad := testConfig(resourceCfg("a", true), resourceCfg("a", true))
	require.Error(t, reg.Reload(bad))

	all := reg.List(false)
	require.Len(t, all, 1)
	assert.Equal(t, "orders", all[0].ID)
}

func TestSetEnabled(t *testing.T) {
	reg, err := registry.New(testConfig(resourceCfg("orders", true)), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, reg.SetEnabled("orders", false))
	assert.Empty(t, reg.List(true))

	require.NoError(t, reg.SetEnabled("orders", true))
	assert.Len(t, reg.List(true), 1)

	assert.ErrorIs(t, reg.SetEnabled("missing", true), registry.ErrNotFound)
}

func TestBySourceTable(t *testing.T) {
	reg, err := registry.New(testConfig(
		resourceCfg("orders", true),
		resourceCfg("customers", true),
	), zap.NewNop())
	require.NoError(t, err)

	descs := reg.BySourceTable("customers")
	require.Len(t, descs, 1)
	assert.Equal(t, "customers", descs[0].ID)
	assert.Empty(t, reg.BySourceTable("unknown"))
}

// Concurrent readers must always observe a complete snapshot.
func TestConcurrentReadersDuringReload(t *testing.T) {
	reg, err := registry.New(testConfig(
		resourceCfg("orders", true),
		resourceCfg("customers", true),
	), zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := len(reg.List(false))
				// Either the old set (2) or the new set (3), never a mix.
				assert.Contains(t, []int{2, 3}, n)
			}
		}()
	}

	for i := 0; i < 50; i++ {
		cfg := testConfig(
			resourceCfg("orders", true),
			resourceCfg("customers", true),
			resourceCfg("invoices", i%2 == 0),
		)
		require.NoError(t, reg.Reload(cfg))
	}
	close(stop)
	wg.Wait()
}
