package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paramed/reconciler/internal/domain"
)

func TestPartitioner_Key(t *testing.T) {
	r := domain.Record{Brand: "Vichy", Category: "Visage", SizeToken: "50ML"}

	tests := []struct {
		name string
		keys []string
		want domain.PartitionKey
	}{
		{"brand category size", []string{"brand", "category", "size"}, "brand=vichy|category=visage|size=50ml"},
		{"brand size", []string{"brand", "size"}, "brand=vichy|size=50ml"},
		{"order is kept", []string{"size", "brand"}, "size=50ml|brand=vichy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPartitioner(tt.keys).Key(r))
		})
	}

	t.Run("empty attributes still key", func(t *testing.T) {
		assert.Equal(t, domain.PartitionKey("brand=|size="), NewPartitioner([]string{"brand", "size"}).Key(domain.Record{}))
	})
}

func TestPartitioner_Partition(t *testing.T) {
	p := NewPartitioner([]string{"brand", "size"})

	sources := []domain.Record{
		{ID: "a-1", Brand: "vichy", SizeToken: "50ml"},
		{ID: "a-2", Brand: "Avene", SizeToken: "40ml"},
		{ID: "a-3", Brand: "VICHY", SizeToken: "50ml"},
		{ID: "a-4", Brand: "nuxe", SizeToken: "100ml"},
	}
	targets := []domain.Record{
		{ID: "b-1", Brand: "vichy", SizeToken: "50ml"},
		{ID: "b-2", Brand: "avene", SizeToken: "40ml"},
		{ID: "b-3", Brand: "cerave", SizeToken: "1l"},
	}

	kept, orphaned := p.Partition(sources, targets)

	require.Len(t, kept, 2)
	assert.Equal(t, domain.PartitionKey("brand=avene|size=40ml"), kept[0].Key, "sorted by key")
	assert.Equal(t, domain.PartitionKey("brand=vichy|size=50ml"), kept[1].Key)

	assert.Equal(t, []string{"a-1", "a-3"}, ids(kept[1].Sources), "input order kept")
	assert.Equal(t, []string{"b-1"}, ids(kept[1].Targets))

	require.Len(t, orphaned, 1)
	assert.Equal(t, domain.PartitionKey("brand=nuxe|size=100ml"), orphaned[0].Key)
	assert.Equal(t, []string{"a-4"}, ids(orphaned[0].Sources))

	t.Run("every kept partition has both sides", func(t *testing.T) {
		for _, part := range kept {
			assert.NotEmpty(t, part.Sources)
			assert.NotEmpty(t, part.Targets)
		}
	})

	t.Run("no targets", func(t *testing.T) {
		kept, orphaned := p.Partition(sources, nil)
		assert.Empty(t, kept)
		assert.Len(t, orphaned, 3)
	})
}

func ids(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
