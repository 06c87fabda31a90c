package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paramed/reconciler/internal/domain"
)

func TestEmbeddingGateway_Embed(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes and keeps order", func(t *testing.T) {
		embedder := newFakeEmbedder(map[string][]float64{
			"a": {3, 4},
			"b": {0, 2},
		})
		g := NewEmbeddingGateway(embedder, nil, EmbeddingGatewayConfig{})

		vectors, err := g.Embed(ctx, []string{"b", "a"})
		require.NoError(t, err)

		assert.InDeltaSlice(t, []float64{0, 1}, vectors[0], 1e-9)
		assert.InDeltaSlice(t, []float64{0.6, 0.8}, vectors[1], 1e-9)
	})

	t.Run("one batched call with duplicates collapsed", func(t *testing.T) {
		embedder := newFakeEmbedder(map[string][]float64{"a": {1, 0}, "b": {0, 1}})
		g := NewEmbeddingGateway(embedder, nil, EmbeddingGatewayConfig{})

		vectors, err := g.Embed(ctx, []string{"a", "b", "a"})
		require.NoError(t, err)

		require.Len(t, vectors, 3)
		assert.Equal(t, vectors[0], vectors[2])
		assert.Equal(t, 1, embedder.callCount())
		assert.Equal(t, []string{"a", "b"}, embedder.batches[0])
	})

	t.Run("cache hits skip the embedder", func(t *testing.T) {
		embedder := newFakeEmbedder(map[string][]float64{"a": {1, 0}, "b": {0, 1}})
		cache := newFakeCache()
		g := NewEmbeddingGateway(embedder, cache, EmbeddingGatewayConfig{})

		_, err := g.Embed(ctx, []string{"a"})
		require.NoError(t, err)
		vectors, err := g.Embed(ctx, []string{"a", "b"})
		require.NoError(t, err)

		assert.InDeltaSlice(t, []float64{1, 0}, vectors[0], 1e-9)
		assert.Equal(t, 2, embedder.callCount())
		assert.Equal(t, []string{"b"}, embedder.batches[1])
		assert.Len(t, cache.data, 2)
	})

	t.Run("broken cache does not fail the run", func(t *testing.T) {
		embedder := newFakeEmbedder(map[string][]float64{"a": {1, 0}})
		cache := newFakeCache()
		cache.getErr = domain.ErrCacheUnavailable
		cache.setErr = domain.ErrCacheUnavailable
		g := NewEmbeddingGateway(embedder, cache, EmbeddingGatewayConfig{})

		vectors, err := g.Embed(ctx, []string{"a"})
		require.NoError(t, err)
		assert.Len(t, vectors, 1)
	})

	t.Run("embedder failure", func(t *testing.T) {
		embedder := newFakeEmbedder(nil)
		embedder.err = errors.New("connection refused")
		g := NewEmbeddingGateway(embedder, nil, EmbeddingGatewayConfig{})

		_, err := g.Embed(ctx, []string{"a"})
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		embedder := newFakeEmbedder(map[string][]float64{"a": {1, 0}, "b": {1, 0, 0}})
		g := NewEmbeddingGateway(embedder, nil, EmbeddingGatewayConfig{})

		_, err := g.Embed(ctx, []string{"a", "b"})
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("zero vector", func(t *testing.T) {
		embedder := newFakeEmbedder(map[string][]float64{"a": {0, 0}})
		g := NewEmbeddingGateway(embedder, nil, EmbeddingGatewayConfig{})

		_, err := g.Embed(ctx, []string{"a"})
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("empty batch makes no call", func(t *testing.T) {
		embedder := newFakeEmbedder(nil)
		g := NewEmbeddingGateway(embedder, nil, EmbeddingGatewayConfig{})

		vectors, err := g.Embed(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Equal(t, 0, embedder.callCount())
	})
}

func TestCandidateIndex_Query(t *testing.T) {
	ctx := context.Background()
	retriever := NewCandidateRetriever(&dotBuilder{}, 0)

	index, err := retriever.Build(ctx, [][]float64{{1, 0}, {0, 1}, unitAt(0.8)})
	require.NoError(t, err)

	t.Run("k is capped at index size", func(t *testing.T) {
		got, err := index.Query(ctx, []float64{1, 0}, 7)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 0, got[0].Position)
		assert.Equal(t, 2, got[1].Position)
		assert.InDelta(t, 0.8, got[1].Score, 1e-9)
	})

	t.Run("k of one", func(t *testing.T) {
		got, err := index.Query(ctx, []float64{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].Position)
	})

	t.Run("build failure", func(t *testing.T) {
		_, err := NewCandidateRetriever(&dotBuilder{err: errors.New("down")}, 0).Build(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})

	t.Run("out of range position", func(t *testing.T) {
		bad := &CandidateIndex{index: &fixedIndex{size: 1, neighbors: []domain.Neighbor{{Position: 4, Score: 1}}}, timeout: defaultCallTimeout}
		_, err := bad.Query(ctx, []float64{1}, 1)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})
}
