package embeddings

import (
	"context"
	"errors"
	"time"
)

// Result is the per-item outcome of a batched embedding call.
type Result struct {
	// Vector is the embedding; nil when Err is set.
	Vector []float32

	// Err is the per-item failure; nil on success.
	Err *EmbedError
}

// EmbedBatch embeds texts in batches of batchSize with a per-batch timeout.
//
// The returned slice has one Result per input text, in input order. A batch
// call never fails as a whole: when a batch errors, every still-pending item
// in that batch carries an EmbedError, Timeout when the batch deadline
// expired and ProviderFailure otherwise. Items from other batches are
// unaffected, so callers can retry individual failures.
func EmbedBatch(ctx context.Context, provider Provider, texts []string, batchSize int, timeout time.Duration) []Result {
	results := make([]Result, len(texts))
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		batchCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			batchCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		vectors, err := provider.EmbedDocuments(batchCtx, chunk)

		if err != nil {
			itemErr := classify(batchCtx, err)
			for i := start; i < end; i++ {
				results[i] = Result{Err: itemErr}
			}
		} else {
			for i, v := range vectors {
				results[start+i] = Result{Vector: v}
			}
		}

		if cancel != nil {
			cancel()
		}
	}

	return results
}

// classify converts a batch-level error into the per-item EmbedError.
func classify(ctx context.Context, err error) *EmbedError {
	var embedErr *EmbedError
	if errors.As(err, &embedErr) {
		return embedErr
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &EmbedError{Kind: KindTimeout, Err: err}
	}
	return &EmbedError{Kind: KindProviderFailure, Err: err}
}
