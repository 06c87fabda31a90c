package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paramed/reconciler/internal/domain"
)

// ClusterEngine groups records from any number of catalogs into connected
// components of a semantic similarity graph
type ClusterEngine struct {
	retriever *CandidateRetriever
	k         int
	threshold float64
	workers   int
	newID     func() string
}

// NewClusterEngine creates a clustering engine
func NewClusterEngine(cfg EngineConfig, retriever *CandidateRetriever) *ClusterEngine {
	return &ClusterEngine{
		retriever: retriever,
		k:         cfg.K,
		threshold: cfg.ClusteringThreshold,
		workers:   max(cfg.Workers, 1),
		newID:     uuid.NewString,
	}
}

// Cluster links every record to its top-k neighbors scoring at or above the
// clustering threshold and returns the connected components.
// Clusters are ordered by their first member; members keep input order.
func (e *ClusterEngine) Cluster(ctx context.Context, records []domain.Record, vectors [][]float64) ([]domain.Cluster, error) {
	if len(records) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors for %d records", domain.ErrEmbeddingUnavailable, len(vectors), len(records))
	}
	if len(records) == 0 {
		return nil, nil
	}

	index, err := e.retriever.Build(ctx, vectors)
	if err != nil {
		return nil, err
	}

	edges := make([][]int, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range records {
		g.Go(func() error {
			// k+1 because a record is usually its own nearest neighbor
			neighbors, err := index.Query(gctx, vectors[i], e.k+1)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				if n.Position == i || n.Score < e.threshold {
					continue
				}
				edges[i] = append(edges[i], n.Position)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	uf := newUnionFind(len(records))
	for i, adj := range edges {
		for _, j := range adj {
			uf.union(i, j)
		}
	}

	return e.components(records, uf), nil
}

func (e *ClusterEngine) components(records []domain.Record, uf *unionFind) []domain.Cluster {
	slot := make(map[int]int)
	var groups [][]int
	for i := range records {
		root := uf.find(i)
		idx, ok := slot[root]
		if !ok {
			idx = len(groups)
			slot[root] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], i)
	}

	clusters := make([]domain.Cluster, 0, len(groups))
	for _, members := range groups {
		clusters = append(clusters, summarize(e.newID(), records, members))
	}
	return clusters
}

// summarize builds a cluster record; the canonical name is the first member's
func summarize(id string, records []domain.Record, members []int) domain.Cluster {
	c := domain.Cluster{
		ID:            id,
		MemberIDs:     make([]string, 0, len(members)),
		MemberSources: make([]string, 0, len(members)),
		CanonicalName: records[members[0]].CanonicalName,
	}

	seenSource := make(map[string]bool)
	low, high := math.Inf(1), math.Inf(-1)
	priced := 0
	for _, i := range members {
		r := records[i]
		c.MemberIDs = append(c.MemberIDs, r.ID)
		c.MemberSources = append(c.MemberSources, r.Source)
		if !seenSource[r.Source] {
			seenSource[r.Source] = true
			c.Sources = append(c.Sources, r.Source)
		}
		if r.HasPrice() {
			priced++
			low = math.Min(low, *r.Price)
			high = math.Max(high, *r.Price)
		}
	}
	if priced >= 2 {
		c.PriceSpread = domain.Float(high - low)
	}
	return c
}

// FirstPerSource returns the first member of c from each source, in member order.
// Members are looked up by (source, id); members missing from records are skipped.
func FirstPerSource(c domain.Cluster, records []domain.Record) []domain.Record {
	byKey := make(map[string]domain.Record, len(records))
	for _, r := range records {
		byKey[recordKey(r.Source, r.ID)] = r
	}

	seen := make(map[string]bool)
	var out []domain.Record
	for i, id := range c.MemberIDs {
		if i >= len(c.MemberSources) {
			break
		}
		r, ok := byKey[recordKey(c.MemberSources[i], id)]
		if !ok || seen[r.Source] {
			continue
		}
		seen[r.Source] = true
		out = append(out, r)
	}
	return out
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}
