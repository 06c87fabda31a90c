package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/paramed/reconciler/internal/domain"
)

// CandidateIndex is a nearest-neighbor index built once per partition side
// and queried for every record on the other side
type CandidateIndex struct {
	index   domain.VectorIndex
	timeout time.Duration
}

// CandidateRetriever builds candidate indexes through the external index builder
type CandidateRetriever struct {
	builder domain.IndexBuilder
	timeout time.Duration
}

// NewCandidateRetriever creates a retriever applying timeout to every build and query
func NewCandidateRetriever(builder domain.IndexBuilder, timeout time.Duration) *CandidateRetriever {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &CandidateRetriever{builder: builder, timeout: timeout}
}

// Build indexes vectors; failures are reported as ErrIndexUnavailable
func (r *CandidateRetriever) Build(ctx context.Context, vectors [][]float64) (*CandidateIndex, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	index, err := r.builder.Build(callCtx, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: build: %v", domain.ErrIndexUnavailable, err)
	}
	return &CandidateIndex{index: index, timeout: r.timeout}, nil
}

// Size returns the number of indexed vectors
func (c *CandidateIndex) Size() int {
	return c.index.Size()
}

// Query returns up to min(k, size) neighbors of vector, descending by score
func (c *CandidateIndex) Query(ctx context.Context, vector []float64, k int) ([]domain.Neighbor, error) {
	k = min(k, c.index.Size())
	if k <= 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	neighbors, err := c.index.Search(callCtx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrIndexUnavailable, err)
	}
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	for _, n := range neighbors {
		if n.Position < 0 || n.Position >= c.index.Size() {
			return nil, fmt.Errorf("%w: position %d out of range", domain.ErrIndexUnavailable, n.Position)
		}
	}
	return neighbors, nil
}
