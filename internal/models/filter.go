package models

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// Sort keys accepted by Filter.Sort.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
	SortAreaDesc  = "area_desc"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filter is the query shape shared by the HTTP endpoint, the cache key and the client coordinator.
type Filter struct {
	Search          string          `json:"search,omitempty"`
	Category        Category        `json:"category,omitempty"`
	TransactionType TransactionType `json:"transactionType,omitempty"`
	Possession      Possession      `json:"possession,omitempty"`
	Location        string          `json:"location,omitempty"`
	MinPrice        float64         `json:"minPrice,omitempty"`
	MaxPrice        float64         `json:"maxPrice,omitempty"`
	MinArea         float64         `json:"minArea,omitempty"`
	MaxArea         float64         `json:"maxArea,omitempty"`
	Bedrooms        []int           `json:"bedrooms,omitempty"`
	Configurations  []string        `json:"configurations,omitempty"`
	VerifiedOnly    bool            `json:"verifiedOnly,omitempty"`
	FeaturedOnly    bool            `json:"featuredOnly,omitempty"`
	Sort            string          `json:"sort,omitempty"`
	Limit           int             `json:"limit"`
	Offset          int             `json:"offset"`
}

// IsAll reports whether the filter spans every category.
func (f Filter) IsAll() bool {
	return f.Category == "" || f.Category == CategoryAll
}

// Normalized returns a copy with defaults applied and multi-value fields sorted,
// so that logically equal filters serialize identically.
func (f Filter) Normalized() Filter {
	out := f
	out.Search = strings.TrimSpace(f.Search)
	out.Location = strings.TrimSpace(f.Location)
	if out.Category == "" {
		out.Category = CategoryAll
	}
	if out.TransactionType == "" {
		out.TransactionType = TransactionUnknown
	}
	if out.Sort == SortRelevance {
		out.Sort = ""
	}
	if out.Limit <= 0 {
		out.Limit = DefaultLimit
	}
	if out.Limit > MaxLimit {
		out.Limit = MaxLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	if len(f.Bedrooms) > 0 {
		out.Bedrooms = append([]int(nil), f.Bedrooms...)
		sort.Ints(out.Bedrooms)
	}
	if len(f.Configurations) > 0 {
		out.Configurations = make([]string, 0, len(f.Configurations))
		for _, c := range f.Configurations {
			out.Configurations = append(out.Configurations, strings.ToLower(strings.TrimSpace(c)))
		}
		sort.Strings(out.Configurations)
	}
	return out
}

// CacheKey is the canonical JSON of the normalized filter with the page
// window zeroed, so every page of one logical query shares a key.
func (f Filter) CacheKey() string {
	n := f.Normalized()
	n.Offset = 0
	n.Limit = 0
	b, err := json.Marshal(n)
	if err != nil {
		// Filter has no unmarshalable fields
		panic(err)
	}
	return string(b)
}

// Validate reports every malformed field at once.
func (f Filter) Validate() error {
	var fields []string
	if badBound(f.MinPrice) {
		fields = append(fields, "minPrice")
	}
	if badBound(f.MaxPrice) || (f.MaxPrice > 0 && f.MinPrice > f.MaxPrice) {
		fields = append(fields, "maxPrice")
	}
	if badBound(f.MinArea) {
		fields = append(fields, "minArea")
	}
	if badBound(f.MaxArea) || (f.MaxArea > 0 && f.MinArea > f.MaxArea) {
		fields = append(fields, "maxArea")
	}
	for _, b := range f.Bedrooms {
		if b < 0 {
			fields = append(fields, "bedrooms")
			break
		}
	}
	switch f.Sort {
	case "", SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest, SortAreaDesc:
	default:
		fields = append(fields, "sort")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// badBound rejects negative bounds and the floats JSON cannot encode.
func badBound(v float64) bool {
	return v < 0 || math.IsNaN(v) || math.IsInf(v, 0)
}
