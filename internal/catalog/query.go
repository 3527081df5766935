package catalog

import (
	"sort"
	"strconv"
	"strings"

	"github.com/david/property-catalog/internal/ingest"
	"github.com/david/property-catalog/internal/models"
)

// Refine applies the search, location and facet parts of the filter. The
// transaction type is applied by the adapters and is not re-checked here.
func Refine(items []models.Property, f models.Filter) []models.Property {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	location := strings.ToLower(strings.TrimSpace(f.Location))

	out := make([]models.Property, 0, len(items))
	for _, p := range items {
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(p.Location), location) {
			continue
		}
		if !MatchesFacets(p, f) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesSearch(p models.Property, needle string) bool {
	for _, field := range []string{p.Title, p.Location, p.AreaLabel, p.Configuration} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// MatchesFacets checks the range and set filters. An unknown price (0) never
// satisfies a minimum but is not excluded by a maximum alone; areas behave the same.
func MatchesFacets(p models.Property, f models.Filter) bool {
	if !inRange(p.PriceValue, f.MinPrice, f.MaxPrice) {
		return false
	}
	if !inRange(p.CarpetArea, f.MinArea, f.MaxArea) {
		return false
	}
	if f.Possession != models.PossessionUnknown && p.Possession != f.Possession {
		return false
	}
	if f.VerifiedOnly && !p.Verified {
		return false
	}
	if f.FeaturedOnly && !p.Featured {
		return false
	}
	if len(f.Bedrooms) > 0 && !containsInt(f.Bedrooms, p.Bedrooms) {
		return false
	}
	if len(f.Configurations) > 0 && !matchesConfiguration(p.Configuration, f.Configurations) {
		return false
	}
	return true
}

func inRange(v, min, max float64) bool {
	if min > 0 && v < min {
		return false
	}
	if max > 0 && v > max {
		return false
	}
	return true
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func matchesConfiguration(configuration string, wanted []string) bool {
	l := strings.ToLower(configuration)
	for _, w := range wanted {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(l, w) {
			return true
		}
	}
	return false
}

// SortProperties orders items in place. The empty sort key is the catalog
// order: featured first, then verified, then newest, then ascending numeric id.
// Every other key falls back to the catalog order on ties, so the result is total.
func SortProperties(items []models.Property, sortKey string) {
	var less func(a, b models.Property) bool
	switch sortKey {
	case models.SortPriceAsc:
		less = func(a, b models.Property) bool {
			if c := compareValues(a.PriceValue, b.PriceValue); c != 0 {
				return c < 0
			}
			return catalogLess(a, b)
		}
	case models.SortPriceDesc:
		less = func(a, b models.Property) bool {
			if c := compareValues(a.PriceValue, b.PriceValue); c != 0 {
				return c > 0
			}
			return catalogLess(a, b)
		}
	case models.SortNewest:
		less = func(a, b models.Property) bool {
			if !a.PostedDate.Equal(b.PostedDate) {
				return a.PostedDate.After(b.PostedDate)
			}
			return catalogLess(a, b)
		}
	case models.SortAreaDesc:
		less = func(a, b models.Property) bool {
			if c := compareValues(a.CarpetArea, b.CarpetArea); c != 0 {
				return c > 0
			}
			return catalogLess(a, b)
		}
	default:
		less = catalogLess
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

// ComparePrices orders two properties by their display price strings.
func ComparePrices(a, b models.Property) int {
	return ingest.ComparePrices(a.Price, b.Price)
}

func compareValues(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func catalogLess(a, b models.Property) bool {
	if a.Featured != b.Featured {
		return a.Featured
	}
	if a.Verified != b.Verified {
		return a.Verified
	}
	if !a.PostedDate.Equal(b.PostedDate) {
		return a.PostedDate.After(b.PostedDate)
	}
	return idLess(a, b)
}

// idLess compares ids numerically when both parse, numeric ids ahead of
// others, and breaks exact ties by category.
func idLess(a, b models.Property) bool {
	an, aErr := strconv.ParseFloat(strings.TrimSpace(a.ID), 64)
	bn, bErr := strconv.ParseFloat(strings.TrimSpace(b.ID), 64)
	switch {
	case aErr == nil && bErr == nil:
		if an != bn {
			return an < bn
		}
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		if a.ID != b.ID {
			return a.ID < b.ID
		}
	}
	return a.Category < b.Category
}

// Paginate returns the [offset, offset+limit) window. It never returns nil.
func Paginate(items []models.Property, limit, offset int) []models.Property {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) || limit <= 0 {
		return []models.Property{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]models.Property, end-offset)
	copy(out, items[offset:end])
	return out
}
