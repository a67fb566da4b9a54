package vectorstore

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity of two vectors, normalizing
// at compare time. Stored vectors are not required to be pre-normalized.
//
// The result is clamped to [-1, 1] to absorb floating point drift. A zero
// vector has no direction; its similarity with anything is 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return float32(sim), nil
}

// normalize returns a unit-length copy of v. Zero vectors are returned as a
// copy unchanged.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sumSq)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
