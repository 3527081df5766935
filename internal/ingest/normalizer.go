package ingest

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/property-catalog/internal/models"
)

// DefaultFeaturedCount is used when the registry does not set featured_count.
const DefaultFeaturedCount = 3

// configurationTokens are matched case-insensitively against the configuration
// cell, first match wins. Fractional BHK entries precede whole ones so "2.5 bhk"
// is not read as "5 bhk".
var configurationTokens = []struct {
	token    string
	bedrooms int
	studio   bool
}{
	{token: "studio", studio: true},
	{token: "1 rk", studio: true},
	{token: "1.5 bhk", bedrooms: 1},
	{token: "2.5 bhk", bedrooms: 2},
	{token: "3.5 bhk", bedrooms: 3},
	{token: "4.5 bhk", bedrooms: 4},
	{token: "1 bhk", bedrooms: 1},
	{token: "2 bhk", bedrooms: 2},
	{token: "3 bhk", bedrooms: 3},
	{token: "4 bhk", bedrooms: 4},
	{token: "5 bhk", bedrooms: 5},
	{token: "6 bhk", bedrooms: 6},
	{token: "1 bed", bedrooms: 1},
	{token: "2 bed", bedrooms: 2},
	{token: "3 bed", bedrooms: 3},
	{token: "4 bed", bedrooms: 4},
}

// Configuration words that mark a non-residential unit.
var commercialTokens = []string{"office", "shop", "showroom", "warehouse", "retail", "commercial", "co-working", "godown"}

var (
	configSpacingRegex = regexp.MustCompile(`(\d(?:\.\d)?)\s*(bhk|rk|bed)`)
	roomCountRegex     = regexp.MustCompile(`(?:^|[^\d.])(\d{1,2}) (?:bhk|bed)`)
	sqftRegex          = regexp.MustCompile(`(?i)sq\.?\s*f(?:ee)?t|sqft|/\s*sft|per\s+sq`)
	yearRegex          = regexp.MustCompile(`\b20\d{2}\b`)
)

var descriptionPolicy = bluemonday.UGCPolicy()

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanText(html) // Fallback to original if parsing fails
	}
	return cleanText(doc.Text())
}

// Normalize converts one positional source row into a canonical Property.
// index is the row's position among the category's emitted rows and drives the
// featured flag. It reports false for structural blank rows (blank id cell).
// Malformed cells degrade to zero values; Normalize never fails.
func Normalize(row []any, index int, cat CategoryConfig) (models.Property, bool) {
	cols := cat.Columns
	id := cell(row, cols, ColID)
	if id == "" {
		return models.Property{}, false
	}

	p := models.Property{
		ID:            id,
		Category:      cat.ID,
		Configuration: cleanText(cell(row, cols, ColConfiguration)),
		CarpetArea:    parseNonNegative(cell(row, cols, ColCarpetArea)),
		BuiltUpArea:   parseNonNegative(cell(row, cols, ColBuiltUpArea)),
		Verified:      parseTruthy(cell(row, cols, ColVerified)),
		Possession:    parsePossession(cell(row, cols, ColPossession)),
		Media:         []models.Media{},
		Images:        []string{},
		Videos:        []string{},
	}

	// 1. Transaction type. Categories without the column default like ambiguous text.
	p.TransactionType = parseTransactionType(cell(row, cols, ColTransactionType))

	// 2. Location and labels
	rawLocation := cleanText(cell(row, cols, ColLocation))
	p.Location = enrichLocation(rawLocation, cat.Gazetteer, cat.DefaultRegion)
	p.AreaLabel = cleanText(cell(row, cols, ColAreaLabel))
	if p.AreaLabel == "" && p.CarpetArea > 0 {
		p.AreaLabel = trimFloat(p.CarpetArea) + " sq.ft"
	}
	p.Title = cleanText(cell(row, cols, ColTitle))
	if p.Title == "" {
		p.Title = fallbackTitle(p.Configuration, cat, rawLocation)
	}

	// 3. Price
	rawPrice := cell(row, cols, ColPrice)
	p.Price = displayPrice(rawPrice)
	p.PriceValue = ParsePrice(p.Price)
	p.PriceType = derivePriceType(rawPrice, p.TransactionType)

	// 4. Bedrooms / bathrooms
	p.Bedrooms, p.Bathrooms = deriveRooms(p.Configuration, cat.ID)

	// 5. Description
	if raw := cell(row, cols, ColDescription); raw != "" {
		if strings.Contains(raw, "<") {
			p.Description = HTMLToText(descriptionPolicy.Sanitize(raw))
		} else {
			p.Description = cleanText(raw)
		}
	}

	// 6. Media, videos first
	var media []models.Media
	for _, u := range splitMediaCell(cell(row, cols, ColMedia)) {
		media = append(media, ClassifyMedia(u))
	}
	for _, m := range OrderMedia(media) {
		p.Media = append(p.Media, m)
		if m.Kind == models.MediaVideo {
			p.Videos = append(p.Videos, m.DeliveryURL)
		} else {
			p.Images = append(p.Images, m.DeliveryURL)
		}
	}

	// 7. Positional and informational fields
	featured := cat.FeaturedCount
	if featured <= 0 {
		featured = DefaultFeaturedCount
	}
	p.Featured = index >= 0 && index < featured
	if t, err := parsePostedDate(cell(row, cols, ColPostedDate)); err == nil {
		p.PostedDate = t
	}
	p.Views, p.Likes = engagement(row, cols, cat.ID, id)

	return p, true
}

// parseTransactionType maps free text to buy or lease. Absent or ambiguous text is buy.
func parseTransactionType(raw string) models.TransactionType {
	l := strings.ToLower(raw)
	hasBuy := strings.Contains(l, "buy") || strings.Contains(l, "sale") || strings.Contains(l, "sell")
	hasLease := strings.Contains(l, "lease") || strings.Contains(l, "rent")
	if hasLease && !hasBuy {
		return models.TransactionLease
	}
	return models.TransactionBuy
}

func derivePriceType(rawPrice string, tt models.TransactionType) models.PriceType {
	if sqftRegex.MatchString(rawPrice) {
		return models.PricePerSqft
	}
	if tt == models.TransactionLease {
		return models.PricePerMonth
	}
	return models.PriceTotal
}

// deriveRooms reads bedrooms from the configuration text. Studio and
// non-residential units have no bedrooms and one bathroom; otherwise bathrooms
// mirror bedrooms and an unreadable configuration counts as one of each.
func deriveRooms(configuration string, category models.Category) (int, int) {
	l := configSpacingRegex.ReplaceAllString(strings.ToLower(configuration), "$1 $2")

	if category == models.CategoryCommercial || category == models.CategoryPlot {
		return 0, 1
	}
	for _, t := range commercialTokens {
		if strings.Contains(l, t) {
			return 0, 1
		}
	}
	for _, t := range configurationTokens {
		if hasToken(l, t.token) {
			if t.studio {
				return 0, 1
			}
			return t.bedrooms, t.bedrooms
		}
	}
	if m := roomCountRegex.FindStringSubmatch(l); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, n
		}
	}
	return 1, 1
}

// hasToken reports whether token occurs in s with no digit or decimal point
// directly before it, so "1 bhk" does not match inside "11 bhk" or "2.1 bhk".
func hasToken(s, token string) bool {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], token)
		if i < 0 {
			return false
		}
		at := from + i
		if at == 0 || !isNumberByte(s[at-1]) {
			return true
		}
		from = at + 1
	}
	return false
}

func isNumberByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}

// parsePossession classifies free text as ready-to-move or under-construction.
func parsePossession(raw string) models.Possession {
	l := strings.ToLower(cleanText(raw))
	switch {
	case l == "":
		return models.PossessionUnknown
	case strings.Contains(l, "ready") || strings.Contains(l, "immediate") || strings.Contains(l, "occupied"):
		return models.PossessionReady
	case strings.Contains(l, "under") || strings.Contains(l, "construction") ||
		strings.Contains(l, "launch") || strings.Contains(l, "upcoming") || yearRegex.MatchString(l):
		return models.PossessionUnderConstruction
	}
	return models.PossessionUnknown
}

func fallbackTitle(configuration string, cat CategoryConfig, rawLocation string) string {
	label := cat.Label
	if label == "" {
		label = string(cat.ID)
	}
	title := strings.TrimSpace(configuration + " " + label)
	if rawLocation != "" {
		title += " in " + rawLocation
	}
	return title
}

// engagement returns views and likes from the row, synthesizing stable values
// from the (category, id) identity when the sheet does not track them.
func engagement(row []any, cols ColumnMap, category models.Category, id string) (int, int) {
	views := parseCount(cell(row, cols, ColViews))
	likes := parseCount(cell(row, cols, ColLikes))
	if views > 0 && likes > 0 {
		return views, likes
	}

	h := fnv.New32a()
	h.Write([]byte(string(category) + "/" + id))
	sum := h.Sum32()
	if views == 0 {
		views = 40 + int(sum%460)
	}
	if likes == 0 {
		likes = views/8 + int(sum%7)
	}
	return views, likes
}
