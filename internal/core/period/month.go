// Package period provides calendar month intervals in the deployment time zone.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the text form of a month, e.g. "2026-09".
const Layout = "2006-01"

// Month is a closed calendar-month interval [Start, End] in a fixed location.
// The zero value is not usable; construct with MonthOf, NewMonth or ParseMonth.
type Month struct {
	start time.Time
}

// MonthOf returns the month containing t, evaluated in loc.
func MonthOf(t time.Time, loc *time.Location) Month {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return Month{start: time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)}
}

// NewMonth returns the given calendar month in loc.
func NewMonth(year int, month time.Month, loc *time.Location) Month {
	if loc == nil {
		loc = time.Local
	}
	return Month{start: time.Date(year, month, 1, 0, 0, 0, 0, loc)}
}

// ParseMonth parses "YYYY-MM" in loc.
func ParseMonth(s string, loc *time.Location) (Month, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), loc)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: expected YYYY-MM", s)
	}
	return Month{start: t}, nil
}

// Start is the first instant of the month.
func (m Month) Start() time.Time { return m.start }

// End is the last representable instant of the month.
func (m Month) End() time.Time { return m.start.AddDate(0, 1, 0).Add(-time.Nanosecond) }

// Location returns the time zone the month is evaluated in.
func (m Month) Location() *time.Location { return m.start.Location() }

// IsZero reports whether m was never initialised.
func (m Month) IsZero() bool { return m.start.IsZero() }

// Contains reports whether t lies in [Start, End].
func (m Month) Contains(t time.Time) bool {
	return !t.Before(m.start) && !t.After(m.End())
}

// Equal reports whether both values denote the same month.
// Months built in different locations are different intervals.
func (m Month) Equal(o Month) bool { return m.start.Equal(o.start) }

// Before reports whether m ends strictly before o starts.
func (m Month) Before(o Month) bool { return m.End().Before(o.start) }

// After reports whether m starts strictly after o ends.
func (m Month) After(o Month) bool { return m.start.After(o.End()) }

// Prev returns the previous month.
func (m Month) Prev() Month { return Month{start: m.start.AddDate(0, -1, 0)} }

// Next returns the following month.
func (m Month) Next() Month { return Month{start: m.start.AddDate(0, 1, 0)} }

// NextCapped returns the following month, never going past current.
func (m Month) NextCapped(current Month) Month {
	next := m.Next()
	if next.After(current) {
		return current
	}
	return next
}

// String returns "YYYY-MM".
func (m Month) String() string { return m.start.Format(Layout) }
