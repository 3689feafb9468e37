package dw

import (
	"fmt"
	"sort"
	"time"

	"salesdw/internal/extract"
	"salesdw/internal/storage"
	"salesdw/internal/transformer/builtin"
)

// Season names. The month partition follows the Southern-hemisphere
// convention and is fixed.
const (
	SeasonSummer = "Summer"
	SeasonAutumn = "Autumn"
	SeasonWinter = "Winter"
	SeasonSpring = "Spring"
)

// TimeAttrs is one time-dimension row without its surrogate key. All seven
// fields together form the natural key.
type TimeAttrs struct {
	Date      time.Time // calendar date at UTC midnight
	Day       int
	Month     int
	Quarter   int
	Year      int
	MonthName string
	Season    string
}

// Season maps a month to its season: {6,7,8} Summer, {12,1,2} Winter,
// {3,4,5} Spring, {9,10,11} Autumn.
func Season(m time.Month) string {
	switch m {
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	default:
		return SeasonAutumn
	}
}

// DeriveTime computes the calendar attributes of t's wall-clock date. Month
// names are the English calendar names.
func DeriveTime(t time.Time) TimeAttrs {
	d := storage.DateOf(t)
	m := d.Month()
	return TimeAttrs{
		Date:      d,
		Day:       d.Day(),
		Month:     int(m),
		Quarter:   (int(m)-1)/3 + 1,
		Year:      d.Year(),
		MonthName: m.String(),
		Season:    Season(m),
	}
}

// NaturalKey is the canonical encoding of all seven attributes.
func (a TimeAttrs) NaturalKey() string {
	return builtin.NaturalKey(a.Date, a.Day, a.Month, a.Quarter, a.Year, a.MonthName, a.Season)
}

// Values returns the attribute columns in timeColumns order.
func (a TimeAttrs) Values() []any {
	return []any{a.Date, int64(a.Day), int64(a.Month), int64(a.Quarter), int64(a.Year), a.MonthName, a.Season}
}

// TimeCandidates derives one candidate per sale, ordered chronologically by
// date (stable, so equal dates keep source order). Reconcile dedupes them,
// which fixes surrogate key assignment to date order.
func TimeCandidates(sales []extract.Sale) []Candidate {
	attrs := make([]TimeAttrs, len(sales))
	for i, s := range sales {
		attrs[i] = DeriveTime(s.Date)
	}
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Date.Before(attrs[j].Date) })

	out := make([]Candidate, len(attrs))
	for i, a := range attrs {
		out[i] = Candidate{NaturalKey: a.NaturalKey(), Row: a.Values()}
	}
	return out
}

// decodeTimeRow rebuilds TimeAttrs from a persisted row (values in
// timeColumns order, as read from any backend).
func decodeTimeRow(vals []any) (TimeAttrs, error) {
	if len(vals) != len(timeColumns) {
		return TimeAttrs{}, fmt.Errorf("time row has %d values, want %d", len(vals), len(timeColumns))
	}
	d, err := storage.ParseTime(vals[0])
	if err != nil {
		return TimeAttrs{}, fmt.Errorf("%s: %w", colDate, err)
	}
	ints := make([]int, 4)
	for i := range ints {
		n, err := storage.KeyInt64(vals[i+1])
		if err != nil {
			return TimeAttrs{}, fmt.Errorf("%s: %w", timeColumns[i+1], err)
		}
		ints[i] = int(n)
	}
	return TimeAttrs{
		Date:      storage.DateOf(d),
		Day:       ints[0],
		Month:     ints[1],
		Quarter:   ints[2],
		Year:      ints[3],
		MonthName: storage.NormalizeKey(vals[5]),
		Season:    storage.NormalizeKey(vals[6]),
	}, nil
}
