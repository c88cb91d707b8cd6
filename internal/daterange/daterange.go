// Package daterange resolves the UTC export window from CLI input,
// environment fallbacks, or the built-in default, and partitions it into
// calendar days.
package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRange is returned when the requested window cannot be resolved:
// an unparseable date, start after end, conflicting selectors, or a
// half-supplied pair.
var ErrInvalidRange = errors.New("invalid date range")

const day = 24 * time.Hour

// Range is a UTC window. Start is inclusive, End exclusive.
type Range struct {
	Start time.Time
	End   time.Time
}

// Selection carries the range-related CLI input. At most one of an explicit
// Start/End pair, Last7, or YTD may be used.
type Selection struct {
	Start string
	End   string
	Last7 bool
	YTD   bool
}

// ParseISOUTC parses a "2006-01-02" date (interpreted as midnight UTC) or
// an RFC 3339 date-time, normalized to UTC.
func ParseISOUTC(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot parse %q as a date", ErrInvalidRange, s)
	}
	return t.UTC(), nil
}

// Resolve picks the export window, in precedence order: explicit selection,
// environment fallback pair, year-to-date default. The returned label names
// the source that won and shows up in the status output.
func Resolve(sel Selection, envStart, envEnd string, now time.Time) (Range, string, error) {
	now = now.UTC()

	explicit := sel.Start != "" || sel.End != ""
	selectors := 0
	if explicit {
		selectors++
	}
	if sel.Last7 {
		selectors++
	}
	if sel.YTD {
		selectors++
	}
	if selectors > 1 {
		return Range{}, "", fmt.Errorf("%w: --range, --last7 and --ytd are mutually exclusive", ErrInvalidRange)
	}

	switch {
	case sel.Last7:
		return Range{Start: now.Add(-7 * day), End: now}, "last7", nil

	case sel.YTD:
		return Range{Start: startOfYear(now), End: now}, "ytd", nil

	case explicit:
		if sel.Start == "" || sel.End == "" {
			return Range{}, "", fmt.Errorf("%w: --range needs both a start and an end date", ErrInvalidRange)
		}
		r, err := parsePair(sel.Start, sel.End)
		if err != nil {
			return Range{}, "", err
		}
		return r, "range", nil

	case envStart != "" || envEnd != "":
		if envStart == "" || envEnd == "" {
			return Range{}, "", fmt.Errorf("%w: DIXA_START_ISO and DIXA_END_ISO must be set together", ErrInvalidRange)
		}
		r, err := parsePair(envStart, envEnd)
		if err != nil {
			return Range{}, "", err
		}
		return r, "env", nil

	default:
		return Range{Start: startOfYear(now), End: now}, "default", nil
	}
}

func parsePair(start, end string) (Range, error) {
	s, err := ParseISOUTC(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseISOUTC(end)
	if err != nil {
		return Range{}, err
	}
	if e.Before(s) {
		return Range{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, end, start)
	}
	return Range{Start: s, End: e}, nil
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Days lists the UTC midnight of every calendar day the range touches,
// end-exclusive: a range covering N whole days yields N entries.
func (r Range) Days() []time.Time {
	var days []time.Time
	for d := truncateToDay(r.Start); d.Before(r.End); d = d.Add(day) {
		days = append(days, d)
	}
	return days
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r Range) String() string {
	return r.Start.Format(time.RFC3339) + " -> " + r.End.Format(time.RFC3339)
}
