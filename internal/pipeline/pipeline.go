// Package pipeline vectorizes resources: it consumes coalesced re-index jobs,
// builds per-facet content, embeds it in batches, and writes the resulting
// vectors to the store.
//
// Parallelism is bounded by a worker pool. Writes for the same resource are
// serialized through a keyed mutex so two overlapping jobs can never
// interleave that resource's facets; disjoint resources proceed in parallel.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/embeddings"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"github.com/fyrsmithlabs/discoveryd/internal/trigger"
	"github.com/fyrsmithlabs/discoveryd/internal/vectorstore"
)

// Catalog is the registry view the pipeline needs.
type Catalog interface {
	Get(id string) (registry.ResourceDescriptor, error)
	List(enabledOnly bool) []registry.ResourceDescriptor
}

// Pipeline consumes re-index jobs and keeps the vector store in sync with the
// resource catalog.
type Pipeline struct {
	workers      int
	batchSize    int
	batchTimeout time.Duration
	maxRetries   int
	modelID      string

	catalog  Catalog
	provider embeddings.Provider
	store    vectorstore.Store
	content  *ContentBuilder
	logger   *zap.Logger

	queue chan trigger.Job
	locks keyedMutex
}

// New wires a pipeline from configuration. The model ID recorded on each
// vector comes from the embedding config, so a model change is visible per
// record.
func New(cfg *config.Config, catalog Catalog, provider embeddings.Provider, store vectorstore.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		workers:      cfg.Vector.Workers,
		batchSize:    cfg.Vector.BatchSize,
		batchTimeout: cfg.Vector.Timeout(),
		maxRetries:   cfg.Embedding.MaxRetries,
		modelID:      cfg.Embedding.Model,
		catalog:      catalog,
		provider:     provider,
		store:        store,
		content:      NewContentBuilder(cfg.Vector.Templates),
		logger:       logger.Named("pipeline"),
		queue:        make(chan trigger.Job, 64),
	}
}

// Submit enqueues a job. It is the dispatch target for the trigger debouncer
// and blocks when the queue is full, applying backpressure to dispatchers.
func (p *Pipeline) Submit(job trigger.Job) {
	p.queue <- job
}

// Run processes jobs with the configured number of workers until the context
// is cancelled. It blocks; callers run it in a goroutine.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

// process re-indexes every resource named by a job.
func (p *Pipeline) process(ctx context.Context, job trigger.Job) {
	start := time.Now()
	logger := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("source_table", job.SourceTable),
		zap.Bool("full", job.Full))
	logger.Info("re-index job started", zap.Int("resources", len(job.ResourceIDs)))
	observeJobStart(job.Full)

	var failed int
	for _, id := range job.ResourceIDs {
		if ctx.Err() != nil {
			logger.Warn("re-index job interrupted", zap.Error(ctx.Err()))
			return
		}
		if err := p.reindexResource(ctx, id); err != nil {
			failed++
			logger.Warn("resource re-index incomplete",
				zap.String("resource_id", id), zap.Error(err))
		}
	}

	observeJobDone(time.Since(start), failed == 0)
	logger.Info("re-index job finished",
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
}

// Reindex synchronously re-vectorizes one resource. Used at startup and by
// jobs; safe to call concurrently with running workers.
func (p *Pipeline) Reindex(ctx context.Context, resourceID string) error {
	return p.reindexResource(ctx, resourceID)
}

// ReindexAll re-vectorizes every catalog resource, including disabled ones so
// re-enabling needs no fresh vectorization. Returns the first error seen but
// keeps going; partial progress is kept.
func (p *Pipeline) ReindexAll(ctx context.Context) error {
	var firstErr error
	for _, desc := range p.catalog.List(false) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.reindexResource(ctx, desc.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// reindexResource embeds and upserts every facet of one resource. The keyed
// lock serializes concurrent jobs touching the same resource.
func (p *Pipeline) reindexResource(ctx context.Context, id string) error {
	unlock := p.locks.lock(id)
	defer unlock()

	desc, err := p.catalog.Get(id)
	if err != nil {
		// The resource left the catalog between dispatch and processing;
		// its vectors are removed so it cannot match anymore.
		if derr := p.store.Delete(ctx, id); derr != nil {
			return derr
		}
		return nil
	}

	contents := p.content.Build(desc)
	facets := make([]registry.VectorType, 0, len(contents))
	texts := make([]string, 0, len(contents))
	for _, vt := range registry.AllVectorTypes() {
		if text, ok := contents[vt]; ok {
			facets = append(facets, vt)
			texts = append(texts, text)
		}
	}

	results := embeddings.EmbedBatch(ctx, p.provider, texts, p.batchSize, p.batchTimeout)

	var firstErr error
	for i, res := range results {
		vec := res.Vector
		if res.Err != nil {
			vec = p.retryItem(ctx, texts[i])
			if vec == nil {
				// Retries exhausted. The previous vector for this
				// facet stays in place, stale but searchable.
				observeFacet(string(facets[i]), false)
				if firstErr == nil {
					firstErr = res.Err
				}
				continue
			}
		}
		if err := p.store.Upsert(ctx, desc.ID, facets[i], vec, p.modelID); err != nil {
			observeFacet(string(facets[i]), false)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		observeFacet(string(facets[i]), true)
	}
	return firstErr
}

// retryItem re-embeds a single failed item up to maxRetries times. Returns
// nil when every attempt failed.
func (p *Pipeline) retryItem(ctx context.Context, text string) []float32 {
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil
		}
		observeRetry()
		res := embeddings.EmbedBatch(ctx, p.provider, []string{text}, 1, p.batchTimeout)
		if len(res) == 1 && res[0].Err == nil {
			return res[0].Vector
		}
	}
	return nil
}

// keyedMutex serializes work per string key. Lock entries are created on
// demand and kept; the key space is the resource catalog, which is small.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
