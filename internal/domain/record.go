package domain

import "strings"

// Record is one cleaned product listing from a catalog
type Record struct {
	ID            string   `json:"id"`
	Source        string   `json:"source"`
	Brand         string   `json:"brand,omitempty"`
	Category      string   `json:"category,omitempty"`
	SizeToken     string   `json:"sizeToken,omitempty"`
	CanonicalName string   `json:"canonicalName"`
	DisplayName   string   `json:"displayName,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	URL           string   `json:"url,omitempty"`
}

// HasPrice reports whether the record carries a usable price
func (r Record) HasPrice() bool {
	return r.Price != nil && *r.Price >= 0
}

// Partition attributes recognized by the partitioner
const (
	AttributeBrand    = "brand"
	AttributeCategory = "category"
	AttributeSize     = "size"
)

// Attribute returns the lower-cased value of a partition attribute.
// The second return value is false for unknown attribute names.
func (r Record) Attribute(name string) (string, bool) {
	switch name {
	case AttributeBrand:
		return strings.ToLower(r.Brand), true
	case AttributeCategory:
		return strings.ToLower(r.Category), true
	case AttributeSize:
		return strings.ToLower(r.SizeToken), true
	default:
		return "", false
	}
}

// PartitionKey identifies a bucket of records sharing coarse attributes.
// Format: "brand=vichy|size=200ml"
type PartitionKey string

// Float returns a pointer to v, handy for optional prices
func Float(v float64) *float64 {
	return &v
}
