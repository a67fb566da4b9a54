package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TEIProvider generates embeddings via a text-embeddings-inference HTTP
// endpoint (or any API exposing the same /embed contract).
type TEIProvider struct {
	config  config.EmbeddingConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *Metrics
}

// NewTEIProvider creates a TEI-backed provider.
func NewTEIProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	// Unlimited when no rate is configured.
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &TEIProvider{
		config:  cfg,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, burstFor(cfg.RateLimit)),
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// burstFor sizes the limiter burst to roughly one second of requests.
func burstFor(rps float64) int {
	if rps <= 0 {
		return 1
	}
	if rps < 1 {
		return 1
	}
	return int(rps)
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// EmbedQuery generates an embedding for a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, "embed_query", []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return p.embed(ctx, "embed_documents", texts)
}

func (p *TEIProvider) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, op, time.Since(start), len(texts), genErr)
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		genErr = wrapEmbedErr(ctx, err)
		return nil, genErr
	}

	req := teiRequest{Inputs: texts, Truncate: true}
	body, err := json.Marshal(req)
	if err != nil {
		genErr = fmt.Errorf("marshaling request: %w", err)
		return nil, genErr
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		genErr = fmt.Errorf("creating request: %w", err)
		return nil, genErr
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey.Value())
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		genErr = wrapEmbedErr(ctx, err)
		return nil, genErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		genErr = &EmbedError{
			Kind: KindProviderFailure,
			Err:  fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
		}
		return nil, genErr
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		genErr = &EmbedError{Kind: KindProviderFailure, Err: fmt.Errorf("decoding response: %w", err)}
		return nil, genErr
	}

	if len(vectors) != len(texts) {
		genErr = &EmbedError{
			Kind: KindProviderFailure,
			Err:  fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts)),
		}
		return nil, genErr
	}
	for _, v := range vectors {
		if len(v) != p.config.Dimension {
			genErr = &EmbedError{
				Kind: KindProviderFailure,
				Err:  fmt.Errorf("got dimension %d, want %d", len(v), p.config.Dimension),
			}
			return nil, genErr
		}
	}

	return vectors, nil
}

// wrapEmbedErr classifies a transport or context error.
func wrapEmbedErr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &EmbedError{Kind: KindTimeout, Err: err}
	}
	return &EmbedError{Kind: KindProviderFailure, Err: err}
}

// Dimension returns the embedding dimension for the configured model.
func (p *TEIProvider) Dimension() int {
	return p.config.Dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (p *TEIProvider) Close() error {
	return nil
}
