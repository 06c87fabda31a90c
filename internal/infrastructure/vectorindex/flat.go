// Package vectorindex provides an exact inner-product nearest-neighbor index.
package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/paramed/reconciler/internal/domain"
)

// FlatIndex scores a query against every indexed vector with one matrix-vector
// product. Ties are broken by insertion order.
type FlatIndex struct {
	vectors *mat.Dense
	rows    int
	dim     int
}

// Builder builds FlatIndex values
type Builder struct{}

// NewBuilder creates a flat index builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build copies vectors into a row-major matrix
func (b *Builder) Build(ctx context.Context, vectors [][]float64) (domain.VectorIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return &FlatIndex{}, nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", domain.ErrDimensionMismatch)
	}

	data := make([]float64, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
		data = append(data, v...)
	}

	return &FlatIndex{
		vectors: mat.NewDense(len(vectors), dim, data),
		rows:    len(vectors),
		dim:     dim,
	}, nil
}

// Size returns the number of indexed vectors
func (f *FlatIndex) Size() int {
	return f.rows
}

// Search returns the k highest inner products, descending
func (f *FlatIndex) Search(ctx context.Context, query []float64, k int) ([]domain.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.rows == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", domain.ErrDimensionMismatch, len(query), f.dim)
	}

	scores := mat.NewVecDense(f.rows, nil)
	scores.MulVec(f.vectors, mat.NewVecDense(f.dim, query))

	neighbors := make([]domain.Neighbor, f.rows)
	for i := range neighbors {
		neighbors[i] = domain.Neighbor{Position: i, Score: scores.AtVec(i)}
	}
	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].Score > neighbors[b].Score
	})

	return neighbors[:min(k, f.rows)], nil
}
