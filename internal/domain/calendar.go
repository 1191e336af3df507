package domain

import (
	"strings"
	"time"
)

// DateLayout is the wire format of a calendar date.
const DateLayout = "2006-01-02"

// zone-less layouts are interpreted in the calendar's location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// Calendar resolves calendar days and zone-less timestamps against a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar builds a Calendar. A nil location falls back to time.Local.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

// Location returns the reference time zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// DayWindow returns the closed interval [00:00:00.000, 23:59:59.999] of the
// day containing t, in the calendar's location.
func (c Calendar) DayWindow(t time.Time) (time.Time, time.Time) {
	local := t.In(c.Location())
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// ParseDate parses a YYYY-MM-DD date as midnight in the calendar's location.
func (c Calendar) ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), c.Location())
}

// FormatDate renders the calendar date of t.
func (c Calendar) FormatDate(t time.Time) string {
	return t.In(c.Location()).Format(DateLayout)
}

// ParseTimestamp accepts RFC 3339 timestamps and zone-less local date-times.
func (c Calendar) ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, true
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, value, c.Location()); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
