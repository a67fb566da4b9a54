// Package matcher routes a natural-language query to the best registered
// resource.
//
// Scoring happens in two stages. Per-facet cosine similarities from the
// vector store are fused under the resource type's weight profile, with
// proportional redistribution when a resource is missing facets. The fused
// similarity is then combined with usage, performance, and context signals
// under the confidence weights. Resources with no facet at or above the
// similarity threshold are excluded outright, never carried with a zero.
package matcher

import "github.com/fyrsmithlabs/discoveryd/internal/registry"

// Candidate is one scored resource, transient to a single match call.
type Candidate struct {
	ResourceID string `json:"resource_id"`

	// Tool is the downstream capability invoked when this candidate wins.
	Tool string `json:"tool"`

	// PerVectorSimilarity holds the qualifying per-facet similarities.
	PerVectorSimilarity map[registry.VectorType]float64 `json:"per_vector_similarity"`

	// FusedSimilarity is the weight-profile fusion of the facet similarities.
	FusedSimilarity float64 `json:"fused_similarity"`

	UsageScore       float64 `json:"usage_score"`
	PerformanceScore float64 `json:"performance_score"`
	ContextScore     float64 `json:"context_score"`

	// Confidence is the final fused score driving the ranking.
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one match call.
type Result struct {
	// NoMatch is set when no resource cleared the similarity threshold.
	// It is a normal outcome, not an error.
	NoMatch bool `json:"no_match"`

	// ResourceID and Tool identify the winning resource when NoMatch is
	// false.
	ResourceID string `json:"resource_id,omitempty"`
	Tool       string `json:"tool,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`

	// Explanation summarizes how the winner scored, for the downstream
	// consumer's logs.
	Explanation string `json:"explanation,omitempty"`

	// Candidates is the ranked shortlist, capped at max_results.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// SignalSource supplies one confidence signal for a resource, normalized to
// [0, 1]. Sources are optional; an absent source contributes 0.
type SignalSource interface {
	Score(resourceID string, queryContext map[string]string) float64
}
