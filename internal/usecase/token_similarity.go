package usecase

import (
	"sort"
	"strings"
)

// TokenSetSimilarity compares two names as sets of whitespace tokens, ignoring
// order and duplicates. Returns a value in [0,1].
//
// The sorted intersection is compared against the intersection plus each side's
// remainder, and the two remainders against each other; the best ratio wins.
// A name whose tokens are a subset of the other's scores 1.
func TokenSetSimilarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	common, onlyA, onlyB := splitTokens(tokensA, tokensB)
	if len(common) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}

	sect := strings.Join(common, " ")
	combinedA := joinNonEmpty(sect, strings.Join(onlyA, " "))
	combinedB := joinNonEmpty(sect, strings.Join(onlyB, " "))

	best := indelRatio(combinedA, combinedB)
	if sect != "" {
		best = max(best, indelRatio(sect, combinedA), indelRatio(sect, combinedB))
	}
	return best
}

// tokenSet lower-cases and splits on whitespace, returning sorted unique tokens
func tokenSet(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	seen := make(map[string]bool, len(words))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	sort.Strings(tokens)
	return tokens
}

// splitTokens partitions two sorted token sets into intersection and differences
func splitTokens(a, b []string) (common, onlyA, onlyB []string) {
	inB := make(map[string]bool, len(b))
	for _, t := range b {
		inB[t] = true
	}
	inA := make(map[string]bool, len(a))
	for _, t := range a {
		inA[t] = true
		if inB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range b {
		if !inA[t] {
			onlyB = append(onlyB, t)
		}
	}
	return common, onlyA, onlyB
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// indelRatio is 1 - indel distance / total length, i.e. 2*LCS / (len(a)+len(b))
func indelRatio(a, b string) float64 {
	r1 := []rune(a)
	r2 := []rune(b)
	total := len(r1) + len(r2)
	if total == 0 {
		return 1
	}
	return float64(2*longestCommonSubsequence(r1, r2)) / float64(total)
}

// longestCommonSubsequence uses two rows instead of the full matrix
func longestCommonSubsequence(r1, r2 []rune) int {
	if len(r1) == 0 || len(r2) == 0 {
		return 0
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)

	for i := 1; i <= len(r1); i++ {
		curr[0] = 0
		for j := 1; j <= len(r2); j++ {
			if r1[i-1] == r2[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}
