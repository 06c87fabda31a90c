package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/paramed/reconciler/internal/domain"
)

// Listing is one raw scraped product, as written by the scrapers (one JSON object per line)
type Listing struct {
	ID         string   `json:"id,omitempty"`
	Site       string   `json:"site"`
	Name       string   `json:"name"`
	Brand      string   `json:"brand,omitempty"`
	Category   string   `json:"category,omitempty"`
	Price      RawPrice `json:"price"`
	URL        string   `json:"url,omitempty"`
	ProductURL string   `json:"product_url,omitempty"`
}

// RawPrice accepts a JSON number, a price string or null
type RawPrice struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler
func (p *RawPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		p.Value = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p.Value = ParsePrice(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v >= 0 {
		p.Value = &v
	}
	return nil
}

// Normalizer converts listings into engine records
type Normalizer struct {
	brands *BrandExtractor
}

// NewNormalizer creates a normalizer with the default brand lists
func NewNormalizer() *Normalizer {
	return &Normalizer{brands: NewBrandExtractor(DefaultKnownBrands, DefaultBrandBlacklist)}
}

// Record normalizes a listing. Listings without an id get a stable one
// derived from site and canonical name.
func (n *Normalizer) Record(l Listing) domain.Record {
	site := strings.ToLower(strings.TrimSpace(l.Site))
	canonical := CanonicalName(l.Name)

	brand := CanonicalName(l.Brand)
	if brand == "" {
		brand = n.brands.Extract(canonical)
	}

	url := l.ProductURL
	if url == "" {
		url = l.URL
	}

	id := strings.TrimSpace(l.ID)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(site+"|"+canonical)).String()
	}

	return domain.Record{
		ID:            id,
		Source:        site,
		Brand:         brand,
		Category:      strings.ToLower(StripAccents(strings.TrimSpace(l.Category))),
		SizeToken:     ExtractSize(canonical),
		CanonicalName: canonical,
		DisplayName:   strings.TrimSpace(l.Name),
		Price:         l.Price.Value,
		URL:           url,
	}
}
