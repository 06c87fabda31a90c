package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Embedder maps a batch of strings to vectors, one per input, same order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	ModelName() string
}

// Neighbor is one nearest-neighbor hit: the indexed position and its inner product
type Neighbor struct {
	Position int
	Score    float64
}

// VectorIndex answers top-k inner-product queries over a fixed set of vectors.
// Results are ordered by descending score, ties by insertion order.
type VectorIndex interface {
	Search(ctx context.Context, query []float64, k int) ([]Neighbor, error)
	Size() int
}

// IndexBuilder builds a VectorIndex over a set of vectors
type IndexBuilder interface {
	Build(ctx context.Context, vectors [][]float64) (VectorIndex, error)
}

// RecordRepository supplies cleaned records per catalog
type RecordRepository interface {
	LoadRecords(ctx context.Context, sources ...string) ([]Record, error)
	SaveRecords(ctx context.Context, records []Record) error
}

// ResultSink receives the output of a finished run
type ResultSink interface {
	Publish(ctx context.Context, result *RunResult) error
}
