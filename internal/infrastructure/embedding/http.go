// Package embedding holds the text-embedding providers behind domain.Embedder.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/logging"
)

const (
	defaultMaxRetries = 3
	defaultBatchSize  = 64
)

// HTTPConfig configures the sentence-embedding service client
type HTTPConfig struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	BatchSize     int
}

// HTTPEmbedder talks to a text-embeddings-inference style service:
// POST {base}/embed {"inputs": [...]} -> [[...], ...]
type HTTPEmbedder struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	rateLimiter *rate.Limiter
	maxRetries  int
	batchSize   int
	backoff     func(attempt int) time.Duration
}

type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

// NewHTTPEmbedder creates a new embedding service client
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &HTTPEmbedder{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		rateLimiter: rate.NewLimiter(limit, burst),
		maxRetries:  maxRetries,
		batchSize:   batchSize,
		backoff:     exponentialBackoff,
	}
}

// ModelName returns the configured model, used to scope cache keys
func (c *HTTPEmbedder) ModelName() string {
	return c.model
}

// Embed embeds texts in batches of at most BatchSize, preserving order
func (c *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vectors, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *HTTPEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	log := logging.FromContext(ctx)

	payload, err := json.Marshal(embedRequest{Inputs: texts, Normalize: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	// Retry transient failures; 4xx other than 429 is final
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrEmbeddingUnavailable, err)
		}

		resp, err := c.doRequest(ctx, payload)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Embedding request failed")
			lastErr = err
			if !c.sleep(ctx, attempt) {
				return nil, lastErr
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%w: status %d, body: %s", domain.ErrEmbeddingUnavailable, resp.StatusCode, truncate(body, 200))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Embedding service error")
			if !c.sleep(ctx, attempt) {
				return nil, lastErr
			}
			continue
		}

		var vectors [][]float64
		if err := json.Unmarshal(body, &vectors); err != nil {
			return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrEmbeddingUnavailable, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vectors), len(texts))
		}
		return vectors, nil
	}

	return nil, lastErr
}

// doRequest executes the POST with proper headers and error handling
func (c *HTTPEmbedder) doRequest(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "reconciler/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	return resp, nil
}

// sleep waits out the backoff; false means ctx ended first
func (c *HTTPEmbedder) sleep(ctx context.Context, attempt int) bool {
	if attempt >= c.maxRetries {
		return true
	}
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
