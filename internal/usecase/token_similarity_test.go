package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSetSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "vichy mineral 89 50ml", "vichy mineral 89 50ml", 1},
		{"reordered", "mineral 89 vichy", "vichy mineral 89", 1},
		{"duplicates ignored", "gel gel douche", "douche gel", 1},
		{"subset", "avene cicalfate", "avene cicalfate creme 40ml", 1},
		{"case insensitive", "Avene Cicalfate", "avene cicalfate", 1},
		{"empty side", "", "avene", 0},
		{"both empty", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TokenSetSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTokenSetSimilarity_Properties(t *testing.T) {
	pairs := [][2]string{
		{"bioderma sebium gel 200ml", "bioderma sebium gel moussant 500ml"},
		{"uriage eau thermale", "cerave creme hydratante"},
		{"abc", "xyz"},
		{"la roche posay effaclar duo", "effaclar duo plus la roche posay 40ml"},
	}

	for _, p := range pairs {
		t.Run(p[0]+" vs "+p[1], func(t *testing.T) {
			ab := TokenSetSimilarity(p[0], p[1])
			ba := TokenSetSimilarity(p[1], p[0])
			assert.InDelta(t, ab, ba, 1e-9, "symmetric")
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		})
	}

	t.Run("partial overlap beats disjoint", func(t *testing.T) {
		overlap := TokenSetSimilarity("bioderma sebium gel 200ml", "bioderma sebium gel moussant 500ml")
		disjoint := TokenSetSimilarity("uriage eau thermale", "cerave creme hydratante")
		assert.Greater(t, overlap, disjoint)
		assert.Less(t, overlap, 1.0)
	})
}

func TestIndelRatio(t *testing.T) {
	assert.InDelta(t, 1.0, indelRatio("", ""), 1e-9)
	assert.InDelta(t, 0.0, indelRatio("abc", ""), 1e-9)
	assert.InDelta(t, 4.0/6.0, indelRatio("abc", "abd"), 1e-9)
	assert.InDelta(t, 1.0, indelRatio("crème", "crème"), 1e-9)
}

func TestLongestCommonSubsequence(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"abcde", "ace", 3},
		{"abc", "def", 0},
		{"", "abc", 0},
		{"gel douche", "gel moussant", 6},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, longestCommonSubsequence([]rune(tt.a), []rune(tt.b)))
		})
	}
}
