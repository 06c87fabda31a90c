package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/logging"
)

// EmbeddingGatewayConfig holds configuration for the embedding gateway
type EmbeddingGatewayConfig struct {
	CacheTTL time.Duration
	Timeout  time.Duration
}

// EmbeddingGateway turns batches of strings into unit-norm vectors.
// Flow: check cache per text -> one batched embedder call for the misses -> validate -> normalize -> cache
type EmbeddingGateway struct {
	embedder domain.Embedder
	cache    domain.CacheRepository
	cacheTTL time.Duration
	timeout  time.Duration
}

// NewEmbeddingGateway creates a gateway; cache may be nil
func NewEmbeddingGateway(embedder domain.Embedder, cache domain.CacheRepository, config EmbeddingGatewayConfig) *EmbeddingGateway {
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 168 * time.Hour // Default 7 days
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	return &EmbeddingGateway{
		embedder: embedder,
		cache:    cache,
		cacheTTL: cacheTTL,
		timeout:  timeout,
	}
}

// Embed returns one unit-norm vector per text, in input order.
// Any failure of the embedder is reported as ErrEmbeddingUnavailable.
func (g *EmbeddingGateway) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, len(texts))
	keys := make([]string, len(texts))

	// Duplicate texts inside one batch are embedded once
	missing := make(map[string][]int)
	var order []string

	for i, text := range texts {
		keys[i] = g.cacheKey(text)
		if vec, ok := g.getFromCache(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}

	if len(order) == 0 {
		return out, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vectors, err := g.embedder.Embed(callCtx, order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(order) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vectors), len(order))
	}

	dim := -1
	for _, vec := range out {
		if vec != nil {
			dim = len(vec)
			break
		}
	}

	for j, text := range order {
		vec, err := unitNormalize(vectors[j])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
		}
		if dim == -1 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: %w: %d != %d", domain.ErrEmbeddingUnavailable, domain.ErrDimensionMismatch, len(vec), dim)
		}

		positions := missing[text]
		for _, i := range positions {
			out[i] = vec
		}
		g.setInCache(ctx, keys[positions[0]], vec)
	}

	return out, nil
}

func (g *EmbeddingGateway) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", g.embedder.ModelName(), hex.EncodeToString(sum[:]))
}

func (g *EmbeddingGateway) getFromCache(ctx context.Context, key string) ([]float64, bool) {
	if g.cache == nil {
		return nil, false
	}
	data, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logging.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("Embedding cache read failed")
		}
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

// setInCache is best effort; a broken cache never fails a run
func (g *EmbeddingGateway) setInCache(ctx context.Context, key string, vec []float64) {
	if g.cache == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, data, g.cacheTTL); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("Embedding cache write failed")
	}
}

// unitNormalize returns a unit-norm copy of vec
func unitNormalize(vec []float64) ([]float64, error) {
	if len(vec) == 0 {
		return nil, errors.New("empty vector")
	}
	norm := floats.Norm(vec, 2)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("vector norm %v", norm)
	}
	out := make([]float64, len(vec))
	floats.ScaleTo(out, 1/norm, vec)
	return out, nil
}
