package pipeline_test

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/pipeline"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"github.com/fyrsmithlabs/discoveryd/internal/trigger"
	"github.com/fyrsmithlabs/discoveryd/internal/vectorstore"
)

// fakeProvider returns deterministic vectors derived from the text. The
// first failCalls EmbedDocuments invocations fail wholesale.
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	failCalls int
	dim       int
}

func fakeEmbedding(text string, dim int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000 - 0.5
	}
	return vec
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	failing := f.calls <= f.failCalls
	f.mu.Unlock()
	if failing {
		return nil, errors.New("embedding service unavailable")
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = fakeEmbedding(text, f.dim)
	}
	return vecs, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Close() error   { return nil }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCatalog struct {
	descriptors map[string]registry.ResourceDescriptor
}

func (c *fakeCatalog) Get(id string) (registry.ResourceDescriptor, error) {
	desc, ok := c.descriptors[id]
	if !ok {
		return registry.ResourceDescriptor{}, registry.ErrNotFound
	}
	return desc, nil
}

func (c *fakeCatalog) List(enabledOnly bool) []registry.ResourceDescriptor {
	var out []registry.ResourceDescriptor
	for _, desc := range c.descriptors {
		if enabledOnly && !desc.Enabled {
			continue
		}
		out = append(out, desc)
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Embedding.MaxRetries = 2
	return cfg
}

func newTestPipeline(t *testing.T, provider *fakeProvider, descs ...registry.ResourceDescriptor) (*pipeline.Pipeline, *vectorstore.MemoryStore) {
	t.Helper()
	catalog := &fakeCatalog{descriptors: make(map[string]registry.ResourceDescriptor)}
	for _, desc := range descs {
		catalog.descriptors[desc.ID] = desc
	}
	store := vectorstore.NewMemoryStore(zap.NewNop())
	return pipeline.New(testConfig(), catalog, provider, store, zap.NewNop()), store
}

func TestReindex_WritesAllFacets(t *testing.T) {
	provider := &fakeProvider{dim: 8}
	p, store := newTestPipeline(t, provider, descriptor())

	require.NoError(t, p.Reindex(context.Background(), "orders"))

	for _, vt := range registry.AllVectorTypes() {
		rec, ok := store.Get("orders", vt)
		require.True(t, ok, "missing facet %s", vt)
		assert.Len(t, rec.Embedding, 8)
		assert.Equal(t, "BAAI/bge-small-en-v1.5", rec.ModelID)
	}
}

func TestReindex_RetriesFailedItems(t *testing.T) {
	// The initial batch call fails; each per-item retry succeeds.
	provider := &fakeProvider{dim: 8, failCalls: 1}
	p, store := newTestPipeline(t, provider, descriptor())

	require.NoError(t, p.Reindex(context.Background(), "orders"))

	for _, vt := range registry.AllVectorTypes() {
		_, ok := store.Get("orders", vt)
		assert.True(t, ok, "missing facet %s", vt)
	}
	// 1 failed batch + 4 single-item retries.
	assert.Equal(t, 5, provider.callCount())
}

func TestReindex_ExhaustedRetriesKeepStaleVector(t *testing.T) {
	provider := &fakeProvider{dim: 8, failCalls: 1000}
	p, store := newTestPipeline(t, provider, descriptor())

	stale := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, store.Upsert(context.Background(), "orders",
		registry.VectorTypeName, stale, "old-model"))

	err := p.Reindex(context.Background(), "orders")
	require.Error(t, err)

	rec, ok := store.Get("orders", registry.VectorTypeName)
	require.True(t, ok)
	assert.Equal(t, stale, rec.Embedding)
	assert.Equal(t, "old-model", rec.ModelID)
}

func TestReindex_RemovedResourceDeletesVectors(t *testing.T) {
	provider := &fakeProvider{dim: 8}
	p, store := newTestPipeline(t, provider, descriptor())

	require.NoError(t, p.Reindex(context.Background(), "orders"))
	_, ok := store.Get("orders", registry.VectorTypeName)
	require.True(t, ok)

	// Rebuild the pipeline over an empty catalog, same store.
	p2 := pipeline.New(testConfig(), &fakeCatalog{descriptors: map[string]registry.ResourceDescriptor{}}, provider, store, zap.NewNop())
	require.NoError(t, p2.Reindex(context.Background(), "orders"))

	_, ok = store.Get("orders", registry.VectorTypeName)
	assert.False(t, ok)
}

func TestReindexAll_IncludesDisabledResources(t *testing.T) {
	disabled := descriptor()
	disabled.ID = "archive"
	disabled.SourceTable = "sales.archive"
	disabled.Enabled = false

	provider := &fakeProvider{dim: 8}
	p, store := newTestPipeline(t, provider, descriptor(), disabled)

	require.NoError(t, p.ReindexAll(context.Background()))

	_, ok := store.Get("orders", registry.VectorTypeComposite)
	assert.True(t, ok)
	_, ok = store.Get("archive", registry.VectorTypeComposite)
	assert.True(t, ok)
}

func TestRun_ProcessesSubmittedJobs(t *testing.T) {
	provider := &fakeProvider{dim: 8}
	p, store := newTestPipeline(t, provider, descriptor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	p.Submit(trigger.Job{
		ID:          "job-1",
		SourceTable: "sales.orders",
		ResourceIDs: []string{"orders"},
	})

	require.Eventually(t, func() bool {
		_, ok := store.Get("orders", registry.VectorTypeComposite)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
