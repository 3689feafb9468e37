package storage

import (
	"fmt"
	"strings"
	"time"
)

// timeLayouts are tried in order by ParseTime. Layouts without a zone are
// interpreted as UTC.
var timeLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02 15:04:05.999999999 -0700 MST", true}, // time.Time.String()
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
	{time.DateOnly, false},
}

// ParseTime converts a date/timestamp value read from any backend into
// time.Time.
//
// Supported inputs:
//   - time.Time (returned as is)
//   - string / []byte in RFC3339(Nano), "2006-01-02 15:04:05[.fff][Z07:00]",
//     "2006-01-02T15:04:05[.fff]", or "2006-01-02"
//
// Zoned inputs keep their offset so the wall-clock date is preserved; callers
// that need a calendar date use t.Date() rather than t.UTC().Date().
func ParseTime(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("empty time value")
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("empty time value")
		}
		return *t, nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value of type %T", v)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	for _, l := range timeLayouts {
		if l.zoned {
			if ts, err := time.Parse(l.layout, s); err == nil {
				return ts, nil
			}
			continue
		}
		if ts, err := time.ParseInLocation(l.layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

// DateOf truncates t to its wall-clock calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
