package normalize

import (
	"sort"
	"strings"
)

// DefaultKnownBrands are matched as name prefixes before any heuristic
var DefaultKnownBrands = []string{
	"la roche-posay", "eau thermale avene", "vichy",
	"uriage", "cerave", "bioderma", "nuxe", "avene", "eucerin",
	"ducray", "klorane", "caudalie", "mustela", "filorga", "noreva",
	"topicrem", "isispharma", "embryolisse", "a-derma", "dermagor",
	"svr", "roger gallet", "neutrogena", "l'oreal", "loreal",
	"cetaphil", "bailleul", "biolane", "dermodex", "endocare",
	"lazartigue", "skinceuticals", "apivita", "melvita", "jacomo",
	"avril", "la provençale", "dr hauschka", "elancyl", "galénic",
	"weleda", "bcombio", "lierac", "johnson", "sanoflore", "revox",
	"revlon", "the ordinary", "biosecure", "marilou bio", "gamarde",
	"hydralin", "dermedic", "8882", "photo white",
}

// DefaultBrandBlacklist holds product words that are never brands
var DefaultBrandBlacklist = []string{
	"capteur", "applicateur", "pistolet", "chaussettes", "bracelet", "brosse",
	"boite", "bandage", "coussin", "coffret", "sac", "fauteuil", "masque",
	"huile", "tube", "thermoflash", "appareil", "set", "pack", "ensemble",
	"accessoire", "stylo", "support", "chaise", "lampe", "table", "tapis",
	"photo", "oreiller", "chausson", "canne", "bandelette", "gant", "collier",
	"calecon", "slip", "lit", "bassin", "couche", "biberon", "biberons",
	"thermometre",
}

// BrandExtractor guesses the brand of a canonical product name
type BrandExtractor struct {
	brands    []string
	blacklist map[string]bool
}

// NewBrandExtractor normalizes the known brands and sorts them longest first
// so prefix matching finds the most specific one
func NewBrandExtractor(brands, blacklist []string) *BrandExtractor {
	seen := make(map[string]bool)
	var known []string
	for _, b := range brands {
		c := CanonicalName(b)
		if c != "" && !seen[c] {
			seen[c] = true
			known = append(known, c)
		}
	}
	sort.SliceStable(known, func(i, j int) bool { return len(known[i]) > len(known[j]) })

	bl := make(map[string]bool, len(blacklist))
	for _, w := range blacklist {
		bl[CanonicalName(w)] = true
	}
	return &BrandExtractor{brands: known, blacklist: bl}
}

// Extract returns the brand of canonical, or "" when none can be determined.
//
// A known brand prefix wins. Otherwise: the word after a leading "la", a
// leading number plus the next word, or the first word, extended with the
// second word when the guess is a single word.
func (e *BrandExtractor) Extract(canonical string) string {
	text := strings.TrimSpace(canonical)
	for _, b := range e.brands {
		if text == b || strings.HasPrefix(text, b+" ") {
			return b
		}
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return ""
	}

	var guess string
	switch {
	case len(tokens) == 1:
		if !e.blacklist[tokens[0]] {
			guess = tokens[0]
		}
	case tokens[0] == "la" && !e.blacklist[tokens[1]]:
		guess = tokens[1]
	case isDigits(tokens[0]) && !e.blacklist[tokens[1]]:
		guess = tokens[0] + " " + tokens[1]
	case !e.blacklist[tokens[0]]:
		guess = tokens[0]
	}

	if guess != "" && !strings.Contains(guess, " ") && len(tokens) >= 2 {
		if candidate := tokens[0] + " " + tokens[1]; !e.blacklist[candidate] {
			guess = candidate
		}
	}
	if e.blacklist[guess] {
		return ""
	}
	return guess
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
