package pipeline

import (
	"strings"
	"time"
)

// Layouts carrying an explicit UTC offset; the instant is unambiguous.
var offsetLayouts = []string{
	time.RFC3339Nano, // also matches values without fractional seconds
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Naive layouts are localised in the reference location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DateParser turns listing timestamps into instants and answers recency
// questions against a clock pinned to one reference location.
type DateParser struct {
	loc *time.Location
	now func() time.Time
}

// NewDateParser binds parsing and "now" to loc. A nil clock means time.Now.
func NewDateParser(loc *time.Location, now func() time.Time) *DateParser {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &DateParser{loc: loc, now: now}
}

// Location returns the reference location.
func (p *DateParser) Location() *time.Location { return p.loc }

// Now returns the current instant in the reference location.
func (p *DateParser) Now() time.Time { return p.now().In(p.loc) }

// Parse reads an ISO-8601-like timestamp. Text with an offset keeps that
// offset; naive text is read as wall time in the reference location.
// The second return is false when nothing matched.
func (p *DateParser) Parse(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, text, p.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsRecent reports t >= now - window. The zero instant is never recent.
func IsRecent(t time.Time, window time.Duration, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(now.Add(-window))
}
