package ledger

import (
	"strings"
	"time"
)

// Epoch is the fallback instant for events without a usable date.
// It precedes every month a dashboard user can select, so such events never
// enter a turnover or a backward roll; Audit counts them instead.
var Epoch = time.Unix(0, 0).UTC()

// dateLayouts are the free-text date formats seen in hand-entered records.
// Day-first forms come before month-first ones: the business runs in India.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

// ResolveTimestamp applies the two-tier timestamp rule: a server-assigned
// creation instant wins; otherwise the free-text date is parsed in loc;
// otherwise the event is pinned to Epoch.
func ResolveTimestamp(created time.Time, dateText string, loc *time.Location) (time.Time, TimestampSource) {
	if !created.IsZero() {
		return created, TimestampServer
	}
	if t, ok := ParseDateText(dateText, loc); ok {
		return t, TimestampText
	}
	return Epoch, TimestampEpoch
}

// ParseDateText parses a free-text date using the known layouts.
func ParseDateText(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
