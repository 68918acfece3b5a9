package analysis

import (
	"math"
	"strings"
	"time"

	"feedback-go/internal/models"
)

// timestampFormats covers Google Forms response sheets first, then the
// common ISO/US/EU renderings.
var timestampFormats = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006-01-02 15:04:05", // SQL datetime
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02", // ISO: 2024-01-15
	"02-01-2006 15:04:05",
	"02-Jan-2006",     // Text: 15-Jan-2024
	"January 2, 2006", // Full text
	"2006/01/02",
}

// Spreadsheet serial dates count days from 1899-12-30.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp reads a timestamp cell. Numeric cells are spreadsheet serial
// dates.
func ParseTimestamp(v models.Value) (time.Time, bool) {
	switch v.Kind {
	case models.KindNumber:
		// Below 1 is a bare time of day; above 2958465 is past year 9999.
		if v.Num < 1 || v.Num > 2958465 {
			return time.Time{}, false
		}
		days := math.Floor(v.Num)
		secs := math.Round((v.Num - days) * 86400)
		return sheetsEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second), true
	case models.KindString:
		text := strings.TrimSpace(v.Raw)
		for _, layout := range timestampFormats {
			if t, err := time.Parse(layout, text); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// weekOfMonth is ceil(day / 7).
func weekOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}
