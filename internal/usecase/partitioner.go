package usecase

import (
	"sort"
	"strings"

	"github.com/paramed/reconciler/internal/domain"
)

// Partition is a bucket of source and target records that share a partition key
type Partition struct {
	Key     domain.PartitionKey
	Sources []domain.Record
	Targets []domain.Record
}

// Partitioner groups records by exact, lower-cased categorical attributes
type Partitioner struct {
	keys []string
}

// NewPartitioner creates a partitioner over the given attribute names, in order
func NewPartitioner(keys []string) *Partitioner {
	return &Partitioner{keys: append([]string(nil), keys...)}
}

// Key builds the partition key of a record
func (p *Partitioner) Key(r domain.Record) domain.PartitionKey {
	parts := make([]string, 0, len(p.keys))
	for _, attr := range p.keys {
		value, _ := r.Attribute(attr)
		parts = append(parts, attr+"="+strings.TrimSpace(value))
	}
	return domain.PartitionKey(strings.Join(parts, "|"))
}

// Partition groups both collections and drops buckets where either side is empty.
// Partitions are returned sorted by key; records keep their input order.
// The second return value lists source records whose bucket had no targets.
func (p *Partitioner) Partition(sources, targets []domain.Record) ([]Partition, []Partition) {
	buckets := make(map[domain.PartitionKey]*Partition)
	get := func(key domain.PartitionKey) *Partition {
		b, ok := buckets[key]
		if !ok {
			b = &Partition{Key: key}
			buckets[key] = b
		}
		return b
	}

	for _, r := range sources {
		b := get(p.Key(r))
		b.Sources = append(b.Sources, r)
	}
	for _, r := range targets {
		b := get(p.Key(r))
		b.Targets = append(b.Targets, r)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var kept, orphaned []Partition
	for _, k := range keys {
		b := buckets[domain.PartitionKey(k)]
		switch {
		case len(b.Sources) > 0 && len(b.Targets) > 0:
			kept = append(kept, *b)
		case len(b.Sources) > 0:
			orphaned = append(orphaned, *b)
		}
	}
	return kept, orphaned
}
