package dw

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdw/internal/extract"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func singleSaleDims(date string) Dimensions {
	return Dimensions{
		Time:     map[string]int64{DeriveTime(day(date)).NaturalKey(): 1},
		Product:  map[string]int64{"10": 10},
		Customer: map[string]int64{"7": 7},
		Employee: map[string]int64{"3": 3},
		Store:    map[string]int64{"2": 2},
	}
}

func TestRevenue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		price    string
		qty      int64
		discount string
		want     string
	}{
		{"10.0", 5, "0.1", "45"},
		{"19.99", 3, "0", "59.97"},
		{"0.10", 3, "0.15", "0.255"},
		{"7", 0, "0.5", "0"},
		{"120.50", 1, "1", "0"},
	}
	for _, tt := range tests {
		got := Revenue(dec(tt.price), tt.qty, dec(tt.discount))
		if !got.Equal(dec(tt.want)) {
			t.Fatalf("Revenue(%s,%d,%s)=%s, want %s", tt.price, tt.qty, tt.discount, got, tt.want)
		}
	}
}

func TestEnrich_ResolvesAndComputesRevenue(t *testing.T) {
	sales := []extract.Sale{{
		SaleID: 1, Date: day("2024-01-03"), ProductID: 10, CustomerID: 7, EmployeeID: 3, StoreID: 2,
		Quantity: 5, Discount: dec("0.1"),
	}}

	e, err := Enrich("fact_sales", sales, singleSaleDims("2024-01-03"), map[int64]decimal.Decimal{10: dec("10.0")}, PolicyStrict)
	require.NoError(t, err)
	require.Len(t, e.Rows, 1)

	r := e.Rows[0]
	assert.Equal(t, int64(1), r.TimeKey)
	assert.Equal(t, int64(10), r.ProductID)
	assert.True(t, r.Revenue.Equal(dec("45")), "revenue=%s", r.Revenue)
	assert.Equal(t, []any{int64(1), int64(1), int64(10), int64(7), int64(3), int64(2), int64(5), r.Revenue, r.Discount}, r.Values())
	assert.Zero(t, e.Dropped)
}

func unresolvedSales() []extract.Sale {
	return []extract.Sale{
		{SaleID: 1, Date: day("2024-01-03"), ProductID: 10, CustomerID: 7, EmployeeID: 3, StoreID: 2, Quantity: 1},
		{SaleID: 2, Date: day("2024-01-04"), ProductID: 10, CustomerID: 99, EmployeeID: 3, StoreID: 2, Quantity: 1},
	}
}

func TestEnrich_StrictFailsWholeLoad(t *testing.T) {
	_, err := Enrich("fact_sales", unresolvedSales(), singleSaleDims("2024-01-03"), map[int64]decimal.Decimal{10: dec("1")}, PolicyStrict)
	require.Error(t, err)

	var re *ReferenceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "fact_sales", re.Table)
	assert.ElementsMatch(t, []Unresolved{
		{SaleID: 2, Dimension: "time", Value: DeriveTime(day("2024-01-04")).NaturalKey()},
		{SaleID: 2, Dimension: "customer", Value: "99"},
	}, re.Unresolved)
	assert.Contains(t, err.Error(), "2 unresolved")
}

func TestEnrich_LenientDropsAndReports(t *testing.T) {
	e, err := Enrich("fact_sales", unresolvedSales(), singleSaleDims("2024-01-03"), map[int64]decimal.Decimal{10: dec("1")}, PolicyLenient)
	require.NoError(t, err)
	require.Len(t, e.Rows, 1)
	assert.Equal(t, int64(1), e.Rows[0].SaleID)
	assert.Equal(t, 1, e.Dropped)
	assert.Len(t, e.Unresolved, 2)
}

func TestEnrich_ProductWithoutPrice(t *testing.T) {
	sales := unresolvedSales()[:1]

	_, err := Enrich("fact_sales", sales, singleSaleDims("2024-01-03"), map[int64]decimal.Decimal{}, PolicyStrict)
	var re *ReferenceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, []Unresolved{{SaleID: 1, Dimension: "price", Value: "10"}}, re.Unresolved)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Policy{"": PolicyStrict, "strict": PolicyStrict, " Lenient ": PolicyLenient} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParsePolicy("drop"); err == nil {
		t.Fatalf("ParsePolicy(drop) accepted")
	}
}
