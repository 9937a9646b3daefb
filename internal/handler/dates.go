package handler

import (
	"time"

	"drivingschool-api/internal/apperrors"
)

const dateOnly = "2006-01-02"

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseDate accepts RFC 3339 or a zone-less timestamp or date read in loc.
// With endOfDay set, a bare date means the last instant of that day.
func parseDate(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation(dateOnly, s, loc); err == nil {
		if endOfDay {
			// Postgres keeps microseconds
			return t.AddDate(0, 0, 1).Add(-time.Microsecond), nil
		}
		return t, nil
	}
	return time.Time{}, apperrors.Validation("Invalid date: " + s)
}
