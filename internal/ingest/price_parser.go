package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Unit suffixes are checked in this order. A naive strip of non-digits would
// lose the unit, so detection runs against the raw text first.
var priceUnits = []struct {
	pattern    *regexp.Regexp
	multiplier float64
}{
	{regexp.MustCompile(`(?i)\d\s*(?:crores?|cr)\b`), 1e7},
	{regexp.MustCompile(`(?i)\d\s*(?:lakhs?|lacs?|l)\b`), 1e5},
	{regexp.MustCompile(`(?i)\d\s*k\b`), 1e3},
}

var (
	priceNumberRegex   = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	unitSuffixRegex    = regexp.MustCompile(`(?i)^\s*(crores?|cr|lakhs?|lacs?|l|k)\b`)
	plainAmountRegex   = regexp.MustCompile(`(?i)^(?:₹|rs\.?|inr)?\s*[\d,]+(?:\.\d+)?$`)
	currencyTokenRegex = regexp.MustCompile(`(?i)₹|\brs\.?|\binr\b`)
)

// ParsePrice turns a display price such as "₹1.2 Cr", "45 Lakh" or "20-50 L"
// into rupees. Ranges compare by their lower bound. Unparseable input yields 0,
// which callers treat as unknown rather than free.
func ParsePrice(display string) float64 {
	text := strings.TrimSpace(display)
	if text == "" {
		return 0
	}
	text = currencyTokenRegex.ReplaceAllString(text, " ")

	// The first number is the lower bound of a range
	loc := priceNumberRegex.FindStringIndex(text)
	if loc == nil {
		return 0
	}
	m := text[loc[0]:loc[1]]

	// "50 L - 1.2 Cr" carries its own unit; "20-50 L" borrows the trailing one.
	multiplier := unitMultiplier(unitSuffixRegex.FindStringSubmatch(text[loc[1]:]))
	if multiplier == 0 {
		multiplier = 1
		for _, u := range priceUnits {
			if u.pattern.MatchString(text) {
				multiplier = u.multiplier
				break
			}
		}
	}

	val, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || val < 0 || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0
	}
	return val * multiplier
}

func unitMultiplier(match []string) float64 {
	if len(match) < 2 {
		return 0
	}
	switch strings.ToLower(match[1])[0] {
	case 'c':
		return 1e7
	case 'l':
		return 1e5
	case 'k':
		return 1e3
	}
	return 0
}

// ComparePrices orders two display prices by parsed value.
func ComparePrices(a, b string) int {
	va, vb := ParsePrice(a), ParsePrice(b)
	switch {
	case va < vb:
		return -1
	case va > vb:
		return 1
	}
	return 0
}

// FormatPrice renders rupees the way listings display them: "1.5 Cr", "45 L" or "₹50,000".
func FormatPrice(v float64) string {
	switch {
	case v <= 0:
		return ""
	case v >= 1e7:
		return trimFloat(v/1e7) + " Cr"
	case v >= 1e5:
		return trimFloat(v/1e5) + " L"
	}
	return "₹" + groupIndian(int64(math.Round(v)))
}

// displayPrice keeps annotated source text ("45 L onwards") and scales bare amounts.
func displayPrice(raw string) string {
	raw = cleanText(raw)
	if raw == "" {
		return ""
	}
	if plainAmountRegex.MatchString(raw) {
		if v := ParsePrice(raw); v > 0 {
			return FormatPrice(v)
		}
	}
	return raw
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// groupIndian formats 15000000 as 1,50,00,000.
func groupIndian(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}
