package dw

import (
	"testing"
	"time"

	"salesdw/internal/extract"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSeason(t *testing.T) {
	t.Parallel()

	want := map[time.Month]string{
		time.January: SeasonWinter, time.February: SeasonWinter, time.December: SeasonWinter,
		time.March: SeasonSpring, time.April: SeasonSpring, time.May: SeasonSpring,
		time.June: SeasonSummer, time.July: SeasonSummer, time.August: SeasonSummer,
		time.September: SeasonAutumn, time.October: SeasonAutumn, time.November: SeasonAutumn,
	}
	for m, s := range want {
		if got := Season(m); got != s {
			t.Fatalf("Season(%s)=%q, want %q", m, got, s)
		}
	}
}

func TestDeriveTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Time
		want TimeAttrs
	}{
		{
			in:   time.Date(2024, 1, 3, 15, 4, 5, 0, time.UTC),
			want: TimeAttrs{Date: day("2024-01-03"), Day: 3, Month: 1, Quarter: 1, Year: 2024, MonthName: "January", Season: SeasonWinter},
		},
		{
			in:   day("2023-07-31"),
			want: TimeAttrs{Date: day("2023-07-31"), Day: 31, Month: 7, Quarter: 3, Year: 2023, MonthName: "July", Season: SeasonSummer},
		},
		{
			// The wall date counts, not the UTC instant.
			in:   time.Date(2024, 12, 31, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600)),
			want: TimeAttrs{Date: day("2024-12-31"), Day: 31, Month: 12, Quarter: 4, Year: 2024, MonthName: "December", Season: SeasonWinter},
		},
	}
	for _, tt := range tests {
		got := DeriveTime(tt.in)
		if !got.Date.Equal(tt.want.Date) || got.Date.Location() != time.UTC {
			t.Fatalf("DeriveTime(%s).Date=%s, want %s UTC", tt.in, got.Date, tt.want.Date)
		}
		got.Date, tt.want.Date = time.Time{}, time.Time{}
		if got != tt.want {
			t.Fatalf("DeriveTime(%s)=%+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestTimeNaturalKey_IgnoresTimeOfDay(t *testing.T) {
	t.Parallel()

	a := DeriveTime(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).NaturalKey()
	b := DeriveTime(time.Date(2024, 3, 1, 18, 45, 0, 0, time.UTC)).NaturalKey()
	if a != b {
		t.Fatalf("same date produced different keys: %q vs %q", a, b)
	}
	if c := DeriveTime(day("2024-03-02")).NaturalKey(); c == a {
		t.Fatalf("different dates share a key %q", c)
	}
}

func TestTimeCandidates_ChronologicalAndStable(t *testing.T) {
	t.Parallel()

	sales := []extract.Sale{
		{SaleID: 1, Date: day("2024-01-03")},
		{SaleID: 2, Date: day("2024-01-01")},
		{SaleID: 3, Date: day("2024-01-02")},
		{SaleID: 4, Date: day("2024-01-01")},
	}
	cands := TimeCandidates(sales)
	if len(cands) != 4 {
		t.Fatalf("candidates=%d, want 4", len(cands))
	}
	want := []string{"2024-01-01", "2024-01-01", "2024-01-02", "2024-01-03"}
	for i, c := range cands {
		d := c.Row[0].(time.Time).Format(time.DateOnly)
		if d != want[i] {
			t.Fatalf("candidate %d date=%s, want %s", i, d, want[i])
		}
	}
}

func TestDecodeTimeRow_RoundTripsAcrossBackendTypes(t *testing.T) {
	t.Parallel()

	a := DeriveTime(day("2024-05-20"))
	rows := [][]any{
		a.Values(),
		{"2024-05-20", "20", "5", "2", "2024", "May", "Spring"},
		{[]byte("2024-05-20 00:00:00"), 20.0, int32(5), int64(2), int64(2024), []byte("May"), "Spring "},
	}
	for i, r := range rows {
		got, err := decodeTimeRow(r)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		if got.NaturalKey() != a.NaturalKey() {
			t.Fatalf("row %d key=%q, want %q", i, got.NaturalKey(), a.NaturalKey())
		}
	}

	if _, err := decodeTimeRow([]any{"2024-05-20"}); err == nil {
		t.Fatalf("short row accepted")
	}
	if _, err := decodeTimeRow([]any{"bad", 1, 1, 1, 1, "x", "y"}); err == nil {
		t.Fatalf("bad date accepted")
	}
}
