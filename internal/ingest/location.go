package ingest

// enrichLocation expands a raw locality token using the gazetteer. The first
// entry whose token occurs in raw wins. Unmatched tokens get the default region
// appended, unless they already name it.
func enrichLocation(raw string, gazetteer []GazetteerEntry, region string) string {
	raw = cleanText(raw)
	if raw == "" {
		return ""
	}
	for _, e := range gazetteer {
		if e.Match != "" && containsFold(raw, e.Match) {
			return e.Location
		}
	}
	if region == "" || containsFold(raw, region) {
		return raw
	}
	return raw + ", " + region
}
