package service

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/logger"
)

// EmbeddingProvider turns text into dense vectors. Implementations must
// return vectors of a fixed dimensionality.
type EmbeddingProvider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimensionality.
	Dimensions() int

	// Ready reports whether the provider is believed reachable. It reflects
	// the outcome of the most recent call, not a live probe.
	Ready() bool
}

// HTTPEmbeddingProvider calls an OpenAI-compatible embeddings endpoint.
// Jina and OpenAI share the same request and response shape.
type HTTPEmbeddingProvider struct {
	client     *resty.Client
	model      string
	dimensions int
	healthy    atomic.Bool
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingItem `json:"data"`
}

// NewHTTPEmbeddingProvider creates an embedding provider from config.
// Parameters:
//   - cfg: provider settings (base URL, model, API key, timeout).
// Returns:
//   - *HTTPEmbeddingProvider: ready provider.
//   - error: non-nil if required settings are missing.
func NewHTTPEmbeddingProvider(cfg *config.EmbeddingConfig) (*HTTPEmbeddingProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	p := &HTTPEmbeddingProvider{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	p.healthy.Store(true)
	return p, nil
}

// Embed returns the vector for a single text.
func (p *HTTPEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one call.
// Parameters:
//   - ctx: request context.
//   - texts: non-empty list of texts.
// Returns:
//   - [][]float32: one vector per text, in input order.
//   - error: wraps ErrEmbeddingUnavailable on transport or provider failure.
func (p *HTTPEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	var result embeddingResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Model: p.model, Input: texts}).
		SetResult(&result).
		Post("/embeddings")
	if err != nil {
		p.healthy.Store(false)
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if resp.IsError() {
		p.healthy.Store(false)
		logger.CtxWarn(ctx, "embedding provider returned %d: %s", resp.StatusCode(), resp.String())
		return nil, fmt.Errorf("%w: status %d", domain.ErrEmbeddingUnavailable, resp.StatusCode())
	}
	if len(result.Data) != len(texts) {
		p.healthy.Store(false)
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			domain.ErrEmbeddingUnavailable, len(result.Data), len(texts))
	}

	// Providers may return items out of order; the index field is
	// authoritative.
	sort.Slice(result.Data, func(i, j int) bool {
		return result.Data[i].Index < result.Data[j].Index
	})

	vectors := make([][]float32, len(texts))
	for i, item := range result.Data {
		if p.dimensions > 0 && len(item.Embedding) != p.dimensions {
			p.healthy.Store(false)
			return nil, fmt.Errorf("%w: embedding %d has %d dims, want %d",
				domain.ErrEmbeddingUnavailable, i, len(item.Embedding), p.dimensions)
		}
		vectors[i] = item.Embedding
	}

	p.healthy.Store(true)
	return vectors, nil
}

// Dimensions returns the configured vector dimensionality.
func (p *HTTPEmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// Ready reports the outcome of the most recent provider call.
func (p *HTTPEmbeddingProvider) Ready() bool {
	return p.healthy.Load()
}
