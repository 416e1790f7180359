package analytics

import (
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
)

const (
	dateLayout    = "2006-01-02"
	defaultPreset = "30d"
	day           = 24 * time.Hour
	// longest span a single report may scan
	maxWindow = 366 * day
)

var presets = map[string]time.Duration{
	"7d":  7 * day,
	"30d": 30 * day,
	"90d": 90 * day,
}

var clock = func() time.Time { return time.Now().UTC() }

// salesWindow reads start and end (RFC3339 or YYYY-MM-DD) or a preset
// ending now. A date-only end covers that whole day.
func salesWindow(query url.Values, now time.Time) (time.Time, time.Time, error) {
	rawStart := strings.TrimSpace(query.Get("start"))
	rawEnd := strings.TrimSpace(query.Get("end"))

	if rawStart == "" && rawEnd == "" {
		preset := strings.ToLower(strings.TrimSpace(query.Get("preset")))
		if preset == "" {
			preset = defaultPreset
		}
		span, ok := presets[preset]
		if !ok {
			return time.Time{}, time.Time{}, invalidWindow("preset must be one of 7d, 30d, 90d")
		}
		return now.Add(-span), now, nil
	}
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, invalidWindow("start and end must be provided together")
	}

	start, _, ok := parseBound(rawStart)
	if !ok {
		return time.Time{}, time.Time{}, invalidWindow("invalid start timestamp")
	}
	end, dateOnly, ok := parseBound(rawEnd)
	if !ok {
		return time.Time{}, time.Time{}, invalidWindow("invalid end timestamp")
	}
	if dateOnly {
		end = end.Add(day - time.Nanosecond)
	}
	switch {
	case end.Before(start):
		return time.Time{}, time.Time{}, invalidWindow("end must be after start")
	case end.Sub(start) > maxWindow:
		return time.Time{}, time.Time{}, invalidWindow("window must not exceed 366 days")
	}
	return start, end, nil
}

func parseBound(value string) (time.Time, bool, bool) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), true, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), false, true
	}
	return time.Time{}, false, false
}

func invalidWindow(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}
