package client

import (
	"sort"

	"github.com/david/property-catalog/internal/catalog"
	"github.com/david/property-catalog/internal/ingest"
	"github.com/david/property-catalog/internal/models"
)

// Refinement narrows the loaded items without another request. It backs the
// sliders and toggles that change too often to round-trip.
type Refinement struct {
	MinPrice       float64
	MaxPrice       float64
	MinArea        float64
	MaxArea        float64
	Possession     models.Possession
	Configurations []string
}

func (r Refinement) IsZero() bool {
	return r.MinPrice == 0 && r.MaxPrice == 0 && r.MinArea == 0 && r.MaxArea == 0 &&
		r.Possession == models.PossessionUnknown && len(r.Configurations) == 0
}

// Matches reports whether p passes every set bound. Prices are read from the
// display string so a client does not depend on the server's parsed value.
func (r Refinement) Matches(p models.Property) bool {
	price := ingest.ParsePrice(p.Price)
	if price == 0 {
		price = p.PriceValue
	}
	if r.MinPrice > 0 && price < r.MinPrice {
		return false
	}
	if r.MaxPrice > 0 && price > r.MaxPrice {
		return false
	}
	return catalog.MatchesFacets(p, models.Filter{
		MinArea:        r.MinArea,
		MaxArea:        r.MaxArea,
		Possession:     r.Possession,
		Configurations: r.Configurations,
	})
}

// Apply returns the matching items in their original order.
func (r Refinement) Apply(items []models.Property) []models.Property {
	out := make([]models.Property, 0, len(items))
	for _, p := range items {
		if r.IsZero() || r.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// PriceOrder is the local sort applied on top of the server order.
type PriceOrder int

const (
	PriceOrderNone PriceOrder = iota
	PriceOrderAsc
	PriceOrderDesc
)

// SortByPrice orders items by display price. Unknown prices count as 0;
// equal prices keep the server order.
func SortByPrice(items []models.Property, order PriceOrder) {
	if order == PriceOrderNone {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := catalog.ComparePrices(items[i], items[j])
		if order == PriceOrderDesc {
			return c > 0
		}
		return c < 0
	})
}
