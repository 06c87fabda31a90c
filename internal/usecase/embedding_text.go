package usecase

import (
	"strings"

	"github.com/paramed/reconciler/internal/domain"
)

// EmbeddingText builds the string sent to the embedder for a record.
//
// canonical: the canonical name as is.
// composite: "brand canonical_name size", skipping the brand when the name
// already starts with it and the size when the name already contains it.
func EmbeddingText(r domain.Record, policy string) string {
	name := strings.TrimSpace(r.CanonicalName)
	if policy != EmbedComposite {
		return name
	}

	brand := strings.ToLower(strings.TrimSpace(r.Brand))
	size := strings.ToLower(strings.TrimSpace(r.SizeToken))
	lowerName := strings.ToLower(name)

	parts := make([]string, 0, 3)
	if brand != "" && !strings.HasPrefix(lowerName, brand) {
		parts = append(parts, brand)
	}
	if name != "" {
		parts = append(parts, name)
	}
	if size != "" && !containsToken(lowerName, size) {
		parts = append(parts, size)
	}
	return strings.Join(parts, " ")
}

func containsToken(s, token string) bool {
	for _, f := range strings.Fields(s) {
		if f == token {
			return true
		}
	}
	return false
}

// embeddingTexts maps records to their embedding strings
func embeddingTexts(records []domain.Record, policy string) []string {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = EmbeddingText(r, policy)
	}
	return texts
}
