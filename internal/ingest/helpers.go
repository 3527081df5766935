package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText normalizes whitespace (alias for normalizeSpace)
func cleanText(s string) string {
	return normalizeSpace(s)
}

// appendUnique appends a string to a slice if it doesn't already exist.
func appendUnique(list []string, v string) []string {
	vClean := strings.TrimSpace(v)
	if vClean == "" {
		return list
	}
	for _, existing := range list {
		if existing == vClean {
			return list
		}
	}
	return append(list, vClean)
}

// cellString renders one loosely-typed JSON cell as text. Missing cells are "".
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// cell returns the text at the column mapped to name, or "" when the category
// has no such column or the row is short.
func cell(row []any, cols ColumnMap, name string) string {
	idx, ok := cols[name]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return cellString(row[idx])
}

var leadingNumberRegex = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// parseNonNegative reads the first number in s ("1,250 sq.ft" -> 1250).
// Failures and negatives yield 0.
func parseNonNegative(s string) float64 {
	m := leadingNumberRegex.FindString(s)
	if m == "" || strings.HasPrefix(m, "-") {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseCount(s string) int {
	v := parseNonNegative(s)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// parseTruthy accepts the spellings sheet editors use for a ticked box.
func parseTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "verified", "✓", "✔", "x":
		return true
	}
	return false
}

// containsFold reports whether substr occurs in s, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
