package extract

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesdw/internal/storage"
)

func missingColumns(table string, f *storage.Frame, cols ...string) ([]int, error) {
	idx, err := f.Require(cols...)
	if err != nil {
		missing := ""
		for _, c := range cols {
			if f.Index(c) < 0 {
				missing = c
				break
			}
		}
		return nil, &Error{Table: table, Column: missing, Err: err}
	}
	return idx, nil
}

func decodeSales(table string, f *storage.Frame, c Columns) ([]Sale, error) {
	idx, err := missingColumns(table, f,
		c.SaleID, c.Date, c.ProductID, c.CustomerID, c.EmployeeID, c.StoreID, c.Quantity, c.Discount)
	if err != nil {
		return nil, err
	}

	out := make([]Sale, 0, f.Len())
	for i, r := range f.Rows {
		row := i + 1
		var s Sale
		ids := []*int64{&s.SaleID, nil, &s.ProductID, &s.CustomerID, &s.EmployeeID, &s.StoreID, &s.Quantity}
		names := []string{c.SaleID, c.Date, c.ProductID, c.CustomerID, c.EmployeeID, c.StoreID, c.Quantity}
		for j, dst := range ids {
			if dst == nil {
				continue
			}
			n, err := storage.KeyInt64(r[idx[j]])
			if err != nil {
				return nil, &Error{Table: table, Column: names[j], Row: row, Err: err}
			}
			*dst = n
		}

		d, err := storage.ParseTime(r[idx[1]])
		if err != nil {
			return nil, &Error{Table: table, Column: c.Date, Row: row, Err: err}
		}
		s.Date = d

		if s.Discount, err = parseDecimal(r[idx[7]], true); err != nil {
			return nil, &Error{Table: table, Column: c.Discount, Row: row, Err: err}
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeProducts(table string, f *storage.Frame, c Columns) ([]Product, error) {
	idx, err := missingColumns(table, f, c.ProductID, c.Name, c.Category, c.Price)
	if err != nil {
		return nil, err
	}

	out := make([]Product, 0, f.Len())
	for i, r := range f.Rows {
		row := i + 1
		id, err := storage.KeyInt64(r[idx[0]])
		if err != nil {
			return nil, &Error{Table: table, Column: c.ProductID, Row: row, Err: err}
		}
		price, err := parseDecimal(r[idx[3]], false)
		if err != nil {
			return nil, &Error{Table: table, Column: c.Price, Row: row, Err: err}
		}
		out = append(out, Product{ID: id, Name: r[idx[1]], Category: r[idx[2]], Price: price})
	}
	return out, nil
}

func decodeCustomers(table string, f *storage.Frame, c Columns) ([]Customer, error) {
	idx, err := missingColumns(table, f, c.CustomerID, c.Name, c.Email, c.Gender, c.BirthDate)
	if err != nil {
		return nil, err
	}

	out := make([]Customer, 0, f.Len())
	for i, r := range f.Rows {
		row := i + 1
		id, err := storage.KeyInt64(r[idx[0]])
		if err != nil {
			return nil, &Error{Table: table, Column: c.CustomerID, Row: row, Err: err}
		}
		c := Customer{ID: id, Name: r[idx[1]], Email: r[idx[2]], Gender: r[idx[3]]}
		if v := r[idx[4]]; !isBlank(v) {
			bd, err := storage.ParseTime(v)
			if err != nil {
				return nil, &Error{Table: table, Column: c.BirthDate, Row: row, Err: err}
			}
			c.BirthDate = &bd
		}
		out = append(out, c)
	}
	return out, nil
}

// checkIDColumn verifies a passthrough table has an integer id on every row.
func checkIDColumn(table string, f *storage.Frame, col string) error {
	idx, err := missingColumns(table, f, col)
	if err != nil {
		return err
	}
	for i, r := range f.Rows {
		if _, err := storage.KeyInt64(r[idx[0]]); err != nil {
			return &Error{Table: table, Column: col, Row: i + 1, Err: err}
		}
	}
	return nil
}

// parseDecimal converts a numeric value from any backend. When nullIsZero is
// false a NULL is an error.
func parseDecimal(v any, nullIsZero bool) (decimal.Decimal, error) {
	if isBlank(v) {
		if nullIsZero {
			return decimal.Zero, nil
		}
		return decimal.Decimal{}, fmt.Errorf("value is NULL")
	}
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Decimal{}, fmt.Errorf("non-finite number %v", t)
		}
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("not a number: %q", t)
		}
		return d, nil
	case []byte:
		return parseDecimal(string(t), nullIsZero)
	}
	return decimal.Decimal{}, fmt.Errorf("unsupported numeric type %T", v)
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	case *time.Time:
		return t == nil
	}
	return false
}
