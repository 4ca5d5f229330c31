package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// numericDate matches purely numeric day/month forms like "3/6/2025" or
// "03-06-25" whose ordering depends on locale.
var numericDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2,4})$`)

var dateConfig = &dateparser.Configuration{
	DefaultTimezone: time.UTC,
	Languages:       []string{"en", "fr", "ar"},
}

// ParseDate accepts ISO 8601 dates and well-known locale forms ("26 juin
// 2025", "June 26, 2025"). Ambiguous numeric month/day orderings fail closed:
// "3/6/2025" is rejected rather than guessed. The result is truncated to a
// UTC date.
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("parse date: empty input")
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return dateOnly(parsed), nil
		}
	}

	if match := numericDate.FindStringSubmatch(trimmed); match != nil {
		first, _ := strconv.Atoi(match[1])
		second, _ := strconv.Atoi(match[2])
		if first != second && first <= 12 && second <= 12 {
			return time.Time{}, fmt.Errorf("parse date: ambiguous month/day ordering %q", trimmed)
		}
	}

	parsed, err := dateparser.Parse(dateConfig, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", trimmed, err)
	}
	return dateOnly(parsed.Time), nil
}

// ParseOptionalDate parses raw unless it is empty.
func ParseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func dateOnly(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// ISOWeekStart returns the Monday of the ISO week containing t, used by the
// week_location fingerprint.
func ISOWeekStart(t time.Time) time.Time {
	date := dateOnly(t)
	weekday := int(date.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return date.AddDate(0, 0, 1-weekday)
}
