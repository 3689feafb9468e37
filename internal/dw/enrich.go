package dw

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"salesdw/internal/extract"
)

// Policy controls what happens to a fact row whose dimension reference does
// not resolve.
type Policy string

const (
	// PolicyStrict fails the fact load when any reference is unresolved.
	PolicyStrict Policy = "strict"
	// PolicyLenient drops unresolved rows and reports them.
	PolicyLenient Policy = "lenient"
)

// ParsePolicy accepts "strict", "lenient" or empty (strict).
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	}
	return "", fmt.Errorf("dw: unknown reference policy %q (want strict or lenient)", s)
}

// Dimensions holds the union mapping (existing and new) of every dimension.
type Dimensions struct {
	Time     map[string]int64
	Product  map[string]int64
	Customer map[string]int64
	Employee map[string]int64
	Store    map[string]int64
}

// FactRow is one enriched fact, columns in fact table order.
type FactRow struct {
	SaleID     int64
	TimeKey    int64
	ProductID  int64
	CustomerID int64
	EmployeeID int64
	StoreID    int64
	Quantity   int64
	Revenue    decimal.Decimal
	Discount   decimal.Decimal
}

// Values returns the row aligned to the fact TableSpec column order.
func (f FactRow) Values() []any {
	return []any{f.SaleID, f.TimeKey, f.ProductID, f.CustomerID, f.EmployeeID, f.StoreID, f.Quantity, f.Revenue, f.Discount}
}

// Unresolved is one dimension reference that did not resolve.
type Unresolved struct {
	SaleID    int64
	Dimension string
	Value     string
}

// ReferenceError reports fact rows whose references are missing from their
// dimensions.
type ReferenceError struct {
	Table      string
	Unresolved []Unresolved
}

func (e *ReferenceError) Error() string {
	const show = 5
	var b strings.Builder
	fmt.Fprintf(&b, "dw: %s: %d unresolved dimension reference(s)", e.Table, len(e.Unresolved))
	for i, u := range e.Unresolved {
		if i == show {
			fmt.Fprintf(&b, " ... and %d more", len(e.Unresolved)-show)
			break
		}
		fmt.Fprintf(&b, "; sale %d %s=%s", u.SaleID, u.Dimension, u.Value)
	}
	return b.String()
}

// Enrichment is the enricher's output.
type Enrichment struct {
	Rows       []FactRow
	Dropped    int
	Unresolved []Unresolved
}

// Revenue is price * quantity * (1 - discount), exact and unrounded.
func Revenue(price decimal.Decimal, quantity int64, discount decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity)).Mul(decimal.NewFromInt(1).Sub(discount))
}

// Enrich resolves every sale against dims and computes revenue from prices
// (product id to price at extraction time). A sale whose product exists only
// in the warehouse, with no extracted price, is unresolved on "price".
//
// Under PolicyStrict any unresolved reference returns a *ReferenceError and
// no rows. Under PolicyLenient unresolved sales are dropped and listed.
func Enrich(table string, sales []extract.Sale, dims Dimensions, prices map[int64]decimal.Decimal, policy Policy) (Enrichment, error) {
	var out Enrichment
	out.Rows = make([]FactRow, 0, len(sales))

	for _, s := range sales {
		var missing []Unresolved
		miss := func(dim, value string) {
			missing = append(missing, Unresolved{SaleID: s.SaleID, Dimension: dim, Value: value})
		}
		lookup := func(dim string, m map[string]int64, nk string) int64 {
			k, ok := m[nk]
			if !ok {
				miss(dim, nk)
			}
			return k
		}

		row := FactRow{SaleID: s.SaleID, Quantity: s.Quantity, Discount: s.Discount}
		row.TimeKey = lookup("time", dims.Time, DeriveTime(s.Date).NaturalKey())
		row.ProductID = lookup("product", dims.Product, identityKey(s.ProductID))
		row.CustomerID = lookup("customer", dims.Customer, identityKey(s.CustomerID))
		row.EmployeeID = lookup("employee", dims.Employee, identityKey(s.EmployeeID))
		row.StoreID = lookup("store", dims.Store, identityKey(s.StoreID))

		price, ok := prices[s.ProductID]
		if _, known := dims.Product[identityKey(s.ProductID)]; !ok && known {
			miss("price", identityKey(s.ProductID))
		}

		if len(missing) > 0 {
			out.Unresolved = append(out.Unresolved, missing...)
			out.Dropped++
			continue
		}
		row.Revenue = Revenue(price, s.Quantity, s.Discount)
		out.Rows = append(out.Rows, row)
	}

	if len(out.Unresolved) > 0 && policy != PolicyLenient {
		return Enrichment{}, &ReferenceError{Table: table, Unresolved: out.Unresolved}
	}
	return out, nil
}
