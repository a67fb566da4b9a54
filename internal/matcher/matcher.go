package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/embeddings"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
	"github.com/fyrsmithlabs/discoveryd/internal/vectorstore"
)

// Catalog is the registry view the matcher needs.
type Catalog interface {
	Get(id string) (registry.ResourceDescriptor, error)
	List(enabledOnly bool) []registry.ResourceDescriptor
}

// Signals bundles the optional confidence signal sources. A nil source
// contributes 0 for every resource.
type Signals struct {
	Usage       SignalSource
	Performance SignalSource
	Context     SignalSource
}

// Matcher scores registered resources against a query.
type Matcher struct {
	cfg      *config.Config
	catalog  Catalog
	provider embeddings.Provider
	store    vectorstore.Store
	signals  Signals
	usage    *UsageTracker
	logger   *zap.Logger
}

// New creates a matcher. When a usage tracker is passed it doubles as the
// usage signal source and is bumped on every winning match.
func New(cfg *config.Config, catalog Catalog, provider embeddings.Provider, store vectorstore.Store, signals Signals, usage *UsageTracker, logger *zap.Logger) *Matcher {
	if usage != nil && signals.Usage == nil {
		signals.Usage = usage
	}
	return &Matcher{
		cfg:      cfg,
		catalog:  catalog,
		provider: provider,
		store:    store,
		signals:  signals,
		usage:    usage,
		logger:   logger.Named("matcher"),
	}
}

// Match routes a query to the best enabled resource.
//
// A caller-supplied deadline is honored through embedding and every facet
// search; on expiry the error is returned and no partial ranking is ever
// produced. An empty candidate set is reported as Result.NoMatch, which is a
// normal outcome rather than an error.
func (m *Matcher) Match(ctx context.Context, query string, queryContext map[string]string) (*Result, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	queryVec, err := m.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	perVector, err := m.searchFacets(ctx, queryVec)
	if err != nil {
		return nil, err
	}

	candidates := m.score(perVector, queryContext)
	if len(candidates) > m.cfg.Vector.MaxResults {
		candidates = candidates[:m.cfg.Vector.MaxResults]
	}

	if len(candidates) == 0 {
		observeMatch(time.Since(start), false)
		m.logger.Debug("no match", zap.String("query", query))
		return &Result{NoMatch: true}, nil
	}

	best := candidates[0]
	if m.usage != nil {
		m.usage.RecordSuccess(best.ResourceID)
	}
	observeMatch(time.Since(start), true)
	m.logger.Debug("matched",
		zap.String("query", query),
		zap.String("resource_id", best.ResourceID),
		zap.Float64("confidence", best.Confidence))

	return &Result{
		ResourceID:  best.ResourceID,
		Tool:        best.Tool,
		Confidence:  best.Confidence,
		Explanation: explain(best),
		Candidates:  candidates,
	}, nil
}

// searchFacets queries every facet index and collects qualifying similarities
// per resource. The limit covers the whole catalog so no qualifying resource
// is cut off before fusion.
func (m *Matcher) searchFacets(ctx context.Context, queryVec []float32) (map[string]map[registry.VectorType]float64, error) {
	limit := len(m.catalog.List(false))
	if limit == 0 {
		return nil, nil
	}

	perVector := make(map[string]map[registry.VectorType]float64)
	for _, vt := range registry.AllVectorTypes() {
		hits, err := m.store.Search(ctx, queryVec, vt, m.cfg.Vector.SimilarityThreshold, limit)
		if err != nil {
			return nil, fmt.Errorf("searching %s vectors: %w", vt, err)
		}
		for _, hit := range hits {
			sims, ok := perVector[hit.ResourceID]
			if !ok {
				sims = make(map[registry.VectorType]float64)
				perVector[hit.ResourceID] = sims
			}
			sims[vt] = float64(hit.Similarity)
		}
	}
	return perVector, nil
}

// score fuses facet similarities and signals into ranked candidates.
// Resources that are disabled, unknown, or whose qualifying facets carry no
// profile weight are dropped.
func (m *Matcher) score(perVector map[string]map[registry.VectorType]float64, queryContext map[string]string) []Candidate {
	candidates := make([]Candidate, 0, len(perVector))
	for id, sims := range perVector {
		desc, err := m.catalog.Get(id)
		if err != nil || !desc.Enabled {
			continue
		}

		fused, ok := fuse(m.cfg.VectorWeightsFor(string(desc.Type)), sims)
		if !ok {
			continue
		}

		usage := signalScore(m.signals.Usage, id, queryContext)
		perf := signalScore(m.signals.Performance, id, queryContext)
		ctxScore := signalScore(m.signals.Context, id, queryContext)

		cw := m.cfg.Matcher.ConfidenceWeights
		confidence := cw["similarity"]*fused +
			cw["usage_history"]*usage +
			cw["performance"]*perf +
			cw["context"]*ctxScore

		candidates = append(candidates, Candidate{
			ResourceID:          id,
			Tool:                desc.Tool,
			PerVectorSimilarity: sims,
			FusedSimilarity:     fused,
			UsageScore:          usage,
			PerformanceScore:    perf,
			ContextScore:        ctxScore,
			Confidence:          confidence,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if candidates[i].FusedSimilarity != candidates[j].FusedSimilarity {
			return candidates[i].FusedSimilarity > candidates[j].FusedSimilarity
		}
		return candidates[i].ResourceID < candidates[j].ResourceID
	})
	return candidates
}

// fuse combines facet similarities under a weight profile. Weights of
// missing facets are redistributed proportionally so the weights actually
// used sum to 1.0. Returns false when nothing carries weight.
func fuse(weights map[string]float64, sims map[registry.VectorType]float64) (float64, bool) {
	var usedSum, acc float64
	for name, w := range weights {
		if w <= 0 {
			continue
		}
		sim, ok := sims[registry.VectorType(name)]
		if !ok {
			continue
		}
		usedSum += w
		acc += w * sim
	}
	if usedSum <= 0 {
		return 0, false
	}
	return acc / usedSum, true
}

func signalScore(source SignalSource, resourceID string, queryContext map[string]string) float64 {
	if source == nil {
		return 0
	}
	score := source.Score(resourceID, queryContext)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// explain renders a one-line account of how the winner scored.
func explain(c Candidate) string {
	facets := make([]string, 0, len(c.PerVectorSimilarity))
	for _, vt := range registry.AllVectorTypes() {
		if sim, ok := c.PerVectorSimilarity[vt]; ok {
			facets = append(facets, fmt.Sprintf("%s=%.3f", vt, sim))
		}
	}
	return fmt.Sprintf("fused similarity %.3f (%s); usage %.2f, performance %.2f, context %.2f",
		c.FusedSimilarity, strings.Join(facets, ", "),
		c.UsageScore, c.PerformanceScore, c.ContextScore)
}
