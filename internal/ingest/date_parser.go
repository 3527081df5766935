package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Spreadsheet day serials count from this epoch.
var sheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var postedDateFormats = []string{
	"2006-01-02",
	"02/01/2006", // Indian day-first
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2006",
	"January 2006",
	"2006-01-02 15:04:05",
}

// parsePostedDate parses the date a listing was added. Sheets may hand us
// ISO text, day-first text or a numeric day serial.
func parsePostedDate(text string) (time.Time, error) {
	text = cleanDateString(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC(), nil
	}
	for _, format := range postedDateFormats {
		if t, err := time.Parse(format, text); err == nil {
			return t.UTC(), nil
		}
	}

	// Day serial: only accept values that land in a plausible range (1990..2100)
	if serial, err := strconv.ParseFloat(text, 64); err == nil && serial > 32874 && serial < 73051 {
		days := int(serial)
		return sheetEpoch.AddDate(0, 0, days), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// cleanDateString removes common prefixes and cleans up date strings
func cleanDateString(s string) string {
	prefixes := []string{"Posted on:", "Posted:", "Listed on:", "Listed:", "Date:"}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
