package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/paramed/reconciler/internal/domain"
)

// unitAt returns a 2D unit vector whose inner product with (1, 0) is cos
func unitAt(cos float64) []float64 {
	return []float64{cos, math.Sqrt(1 - cos*cos)}
}

// oneHot returns the i-th basis vector of dimension n
func oneHot(i, n int) []float64 {
	v := make([]float64, n)
	v[i] = 1
	return v
}

// fakeEmbedder maps known texts to fixed vectors
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	err     error
	calls   int
	batches [][]string
}

func newFakeEmbedder(vectors map[string][]float64) *fakeEmbedder {
	return &fakeEmbedder{vectors: vectors}
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// dotIndex is an exact inner-product index
type dotIndex struct {
	vectors [][]float64
}

func (d *dotIndex) Search(ctx context.Context, query []float64, k int) ([]domain.Neighbor, error) {
	out := make([]domain.Neighbor, len(d.vectors))
	for i, v := range d.vectors {
		var s float64
		for j := range v {
			s += v[j] * query[j]
		}
		out[i] = domain.Neighbor{Position: i, Score: s}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out[:min(k, len(out))], nil
}

func (d *dotIndex) Size() int { return len(d.vectors) }

type dotBuilder struct {
	err error
}

func (b *dotBuilder) Build(ctx context.Context, vectors [][]float64) (domain.VectorIndex, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &dotIndex{vectors: vectors}, nil
}

// matrixIndex answers one-hot queries from a fixed similarity matrix
type matrixIndex struct {
	scores [][]float64
}

func (m *matrixIndex) Search(ctx context.Context, query []float64, k int) ([]domain.Neighbor, error) {
	row := -1
	for i, v := range query {
		if v == 1 {
			row = i
		}
	}
	if row < 0 {
		return nil, errors.New("query is not one-hot")
	}
	out := make([]domain.Neighbor, len(m.scores[row]))
	for j, s := range m.scores[row] {
		out[j] = domain.Neighbor{Position: j, Score: s}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out[:min(k, len(out))], nil
}

func (m *matrixIndex) Size() int { return len(m.scores) }

type matrixBuilder struct {
	scores [][]float64
}

func (b *matrixBuilder) Build(ctx context.Context, vectors [][]float64) (domain.VectorIndex, error) {
	return &matrixIndex{scores: b.scores}, nil
}

// fixedIndex returns the same neighbor list for every query
type fixedIndex struct {
	neighbors []domain.Neighbor
	size      int
	err       error
}

func (f *fixedIndex) Search(ctx context.Context, query []float64, k int) ([]domain.Neighbor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.neighbors[:min(k, len(f.neighbors))], nil
}

func (f *fixedIndex) Size() int { return f.size }

// fakeCache is an in-memory domain.CacheRepository
type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

// recordingSink keeps every published result
type recordingSink struct {
	mu      sync.Mutex
	results []*domain.RunResult
	err     error
}

func (s *recordingSink) Publish(ctx context.Context, result *domain.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, result)
	return nil
}

// memoryRepo is an in-memory domain.RecordRepository
type memoryRepo struct {
	records []domain.Record
	err     error
}

func (r *memoryRepo) LoadRecords(ctx context.Context, sources ...string) ([]domain.Record, error) {
	return r.records, r.err
}

func (r *memoryRepo) SaveRecords(ctx context.Context, records []domain.Record) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, records...)
	return nil
}

func rec(id, source, name string, price *float64) domain.Record {
	return domain.Record{ID: id, Source: source, CanonicalName: name, Price: price}
}
