package ical

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDateTime implements the common iCalendar date-time forms: a zoned instant
// (YYYYMMDDTHHMMSSZ / RFC3339 with offset), a date-only all-day value
// (YYYYMMDD), and a bare local/zoned datetime (YYYYMMDDTHHMMSS). Named
// zones are resolved via ParseDateTimeInZone; here a bare local form falls
// back to time.Local, matching the "treat as local" half of the table.
func ParseDateTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)

	switch {
	case len(s) == 8:
		t, err := time.Parse("20060102", s)
		return t, true, err
	case len(s) == 15:
		t, err := time.ParseInLocation("20060102T150405", s, time.Local)
		return t, false, err
	case len(s) == 16 && strings.HasSuffix(s, "Z"):
		t, err := time.Parse("20060102T150405Z", s)
		return t, false, err
	}

	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

// ParseDateTimeInZone resolves a bare local datetime (YYYYMMDDTHHMMSS)
// against a named zone (TZID parameter). An unsupported zone name is
// treated as local time, a best-effort fallback rather than a parse error.
func ParseDateTimeInZone(s, tzid string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if tzid == "" || len(s) != 15 {
		return ParseDateTime(s)
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("20060102T150405", s, loc)
	return t, false, err
}

// ParseNumericOffset parses a "+HHMM" / "-HHMM" numeric offset into a
// fixed-zone time.Location.
func ParseNumericOffset(offset string) (*time.Location, error) {
	if len(offset) != 5 || (offset[0] != '+' && offset[0] != '-') {
		return nil, fmt.Errorf("invalid numeric offset %q", offset)
	}
	hours, err := strconv.Atoi(offset[1:3])
	if err != nil {
		return nil, err
	}
	minutes, err := strconv.Atoi(offset[3:5])
	if err != nil {
		return nil, err
	}
	secs := hours*3600 + minutes*60
	if offset[0] == '-' {
		secs = -secs
	}
	return time.FixedZone(offset, secs), nil
}

// IsAllDay classifies an event as all-day if start is date-only, or
// if start and end are both exact midnight instants exactly 24h apart.
func IsAllDay(start, end time.Time, startDateOnly bool) bool {
	if startDateOnly {
		return true
	}
	isMidnight := func(t time.Time) bool {
		return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
	}
	return isMidnight(start) && isMidnight(end) && end.Sub(start) == 24*time.Hour
}

func parseMultipleDates(dateStr string) ([]time.Time, error) {
	var dates []time.Time
	for _, part := range strings.Split(dateStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		date, _, err := ParseDateTime(part)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}
	return dates, nil
}

// parseDuration parses the subset of ISO-8601 durations iCal uses
// (P[n]D[T[n]H[n]M[n]S]).
func parseDuration(durStr string) (time.Duration, error) {
	durStr = strings.TrimSpace(durStr)
	if !strings.HasPrefix(durStr, "P") {
		return 0, fmt.Errorf("invalid duration format")
	}

	var days, hours, minutes, seconds int
	var inTime bool
	var current strings.Builder

	for _, r := range durStr[1:] {
		switch r {
		case 'D':
			if n, err := strconv.Atoi(current.String()); err == nil {
				days = n
			}
			current.Reset()
		case 'T':
			inTime = true
			current.Reset()
		case 'H':
			if inTime {
				if n, err := strconv.Atoi(current.String()); err == nil {
					hours = n
				}
			}
			current.Reset()
		case 'M':
			if inTime {
				if n, err := strconv.Atoi(current.String()); err == nil {
					minutes = n
				}
			}
			current.Reset()
		case 'S':
			if inTime {
				if n, err := strconv.Atoi(current.String()); err == nil {
					seconds = n
				}
			}
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}
