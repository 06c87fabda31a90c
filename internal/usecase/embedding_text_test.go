package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paramed/reconciler/internal/domain"
)

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name   string
		record domain.Record
		policy string
		want   string
	}{
		{
			name:   "canonical",
			record: domain.Record{Brand: "vichy", CanonicalName: "mineral 89", SizeToken: "50ml"},
			policy: EmbedCanonical,
			want:   "mineral 89",
		},
		{
			name:   "composite adds brand and size",
			record: domain.Record{Brand: "Vichy", CanonicalName: "mineral 89", SizeToken: "50ml"},
			policy: EmbedComposite,
			want:   "vichy mineral 89 50ml",
		},
		{
			name:   "composite does not repeat brand or size",
			record: domain.Record{Brand: "vichy", CanonicalName: "vichy mineral 89 50ml", SizeToken: "50ml"},
			policy: EmbedComposite,
			want:   "vichy mineral 89 50ml",
		},
		{
			name:   "composite without brand",
			record: domain.Record{CanonicalName: "creme mains", SizeToken: "75ml"},
			policy: EmbedComposite,
			want:   "creme mains 75ml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmbeddingText(tt.record, tt.policy))
		})
	}
}
