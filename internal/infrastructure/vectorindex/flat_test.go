package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paramed/reconciler/internal/domain"
)

func TestFlatIndex_Search(t *testing.T) {
	ctx := context.Background()
	index, err := NewBuilder().Build(ctx, [][]float64{
		{1, 0},
		{0, 1},
		{0.6, 0.8},
		{1, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, index.Size())

	tests := []struct {
		name      string
		query     []float64
		k         int
		positions []int
	}{
		{"ties keep insertion order", []float64{1, 0}, 3, []int{0, 3, 2}},
		{"k larger than index", []float64{0, 1}, 10, []int{1, 2, 0, 3}},
		{"k zero", []float64{0, 1}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := index.Search(ctx, tt.query, tt.k)
			require.NoError(t, err)

			var positions []int
			for _, n := range got {
				positions = append(positions, n.Position)
			}
			assert.Equal(t, tt.positions, positions)
		})
	}

	t.Run("scores are inner products", func(t *testing.T) {
		got, err := index.Search(ctx, []float64{0, 1}, 2)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got[0].Score, 1e-9)
		assert.InDelta(t, 0.8, got[1].Score, 1e-9)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := index.Search(ctx, []float64{1, 0, 0}, 1)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		index, err := NewBuilder().Build(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, index.Size())

		got, err := index.Search(ctx, []float64{1}, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ragged vectors", func(t *testing.T) {
		_, err := NewBuilder().Build(ctx, [][]float64{{1, 0}, {1}})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewBuilder().Build(cctx, [][]float64{{1}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
