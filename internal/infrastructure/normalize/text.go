// Package normalize turns scraped listing text into the canonical fields the
// engine compares: canonical name, size token, brand and price.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Package-level compiled regex patterns for performance
var (
	separatorRegex     = regexp.MustCompile(`[\s\-_]+`)
	nonAlphanumRegex   = regexp.MustCompile(`[^a-z0-9 ]`)
	numberUnitRegex    = regexp.MustCompile(`(\d+)\s*(ml|mg|g|l)\b`)
	multipleSpaceRegex = regexp.MustCompile(`\s+`)
	sizeRegex          = regexp.MustCompile(`\b(\d+(?:\.\d+)?)(ml|mg|g|l)\b`)
)

// StripAccents removes combining marks: "Crème Hydratante" -> "Creme Hydratante"
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CanonicalName lower-cases, strips accents and punctuation, and joins
// quantities with their unit: "Avène Crème 50 ML" -> "avene creme 50ml"
func CanonicalName(name string) string {
	text := strings.ToLower(strings.TrimSpace(name))
	if text == "" {
		return ""
	}
	text = StripAccents(text)
	text = separatorRegex.ReplaceAllString(text, " ")
	text = nonAlphanumRegex.ReplaceAllString(text, "")
	text = numberUnitRegex.ReplaceAllString(text, "${1}${2}")
	text = multipleSpaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ExtractSize returns the first size token of a canonical name, or ""
func ExtractSize(canonical string) string {
	return sizeRegex.FindString(canonical)
}
