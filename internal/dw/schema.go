package dw

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesdw/internal/extract"
	"salesdw/internal/storage"
)

// Warehouse column names.
const (
	colTimeKey   = "time_key"
	colDate      = "date"
	colDay       = "day"
	colMonth     = "month"
	colQuarter   = "quarter"
	colYear      = "year"
	colMonthName = "month_name"
	colSeason    = "season"
	colAge       = "age"
	colQuantity  = "quantity"
	colRevenue   = "revenue"
	colDiscount  = "discount"
)

// timeColumns are the attribute columns of the time dimension, in natural key
// order.
var timeColumns = []string{colDate, colDay, colMonth, colQuarter, colYear, colMonthName, colSeason}

// WarehouseTables names the physical warehouse tables.
type WarehouseTables struct {
	Time     string `json:"time" mapstructure:"time"`
	Product  string `json:"product" mapstructure:"product"`
	Customer string `json:"customer" mapstructure:"customer"`
	Store    string `json:"store" mapstructure:"store"`
	Employee string `json:"employee" mapstructure:"employee"`
	Fact     string `json:"fact" mapstructure:"fact"`
}

// DefaultWarehouseTables returns the conventional star-schema table names.
func DefaultWarehouseTables() WarehouseTables {
	return WarehouseTables{
		Time:     "dim_time",
		Product:  "dim_product",
		Customer: "dim_customer",
		Store:    "dim_store",
		Employee: "dim_employee",
		Fact:     "fact_sales",
	}
}

// WithDefaults fills empty names from DefaultWarehouseTables.
func (w WarehouseTables) WithDefaults() WarehouseTables {
	d := DefaultWarehouseTables()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&w.Time, d.Time)
	fill(&w.Product, d.Product)
	fill(&w.Customer, d.Customer)
	fill(&w.Store, d.Store)
	fill(&w.Employee, d.Employee)
	fill(&w.Fact, d.Fact)
	return w
}

func timeSpec(table string) storage.TableSpec {
	return storage.TableSpec{
		Name:       table,
		PrimaryKey: &storage.PrimaryKeySpec{Name: colTimeKey, Type: storage.TypeBigInt},
		Columns: []storage.ColumnSpec{
			{Name: colDate, Type: storage.TypeDate, Nullable: storage.NotNull()},
			{Name: colDay, Type: storage.TypeBigInt, Nullable: storage.NotNull()},
			{Name: colMonth, Type: storage.TypeBigInt, Nullable: storage.NotNull()},
			{Name: colQuarter, Type: storage.TypeBigInt, Nullable: storage.NotNull()},
			{Name: colYear, Type: storage.TypeBigInt, Nullable: storage.NotNull()},
			{Name: colMonthName, Type: storage.TypeVarchar(16), Nullable: storage.NotNull()},
			{Name: colSeason, Type: storage.TypeVarchar(16), Nullable: storage.NotNull()},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: timeColumns}},
	}
}

func productSpec(table string, rows [][]any) storage.TableSpec {
	return storage.TableSpec{
		Name:       table,
		PrimaryKey: &storage.PrimaryKeySpec{Name: extract.ColProductID, Type: storage.TypeBigInt},
		Columns: []storage.ColumnSpec{
			{Name: extract.ColName, Type: inferType(rows, 0)},
			{Name: extract.ColCategory, Type: inferType(rows, 1)},
			{Name: extract.ColPrice, Type: storage.TypeDecimal, Nullable: storage.NotNull()},
		},
	}
}

func customerSpec(table string, rows [][]any) storage.TableSpec {
	return storage.TableSpec{
		Name:       table,
		PrimaryKey: &storage.PrimaryKeySpec{Name: extract.ColCustomerID, Type: storage.TypeBigInt},
		Columns: []storage.ColumnSpec{
			{Name: extract.ColName, Type: inferType(rows, 0)},
			{Name: extract.ColEmail, Type: inferType(rows, 1)},
			{Name: extract.ColGender, Type: inferType(rows, 2)},
			{Name: colAge, Type: storage.TypeBigInt},
		},
	}
}

// passthroughSpec builds a dimension that carries every source column, keyed
// by keyCol. rows are attribute rows aligned to cols (key excluded).
func passthroughSpec(table, keyCol string, cols []string, rows [][]any) storage.TableSpec {
	spec := storage.TableSpec{
		Name:       table,
		PrimaryKey: &storage.PrimaryKeySpec{Name: keyCol, Type: storage.TypeBigInt},
	}
	for i, c := range cols {
		spec.Columns = append(spec.Columns, storage.ColumnSpec{Name: c, Type: inferType(rows, i)})
	}
	return spec
}

func factSpec(t WarehouseTables, enforceRefs bool) storage.TableSpec {
	ref := func(table, col string) string {
		if !enforceRefs {
			return ""
		}
		return fmt.Sprintf("%s(%s)", table, col)
	}
	return storage.TableSpec{
		Name:       t.Fact,
		PrimaryKey: &storage.PrimaryKeySpec{Name: extract.ColSaleID, Type: storage.TypeBigInt},
		Columns: []storage.ColumnSpec{
			{Name: colTimeKey, Type: storage.TypeBigInt, References: ref(t.Time, colTimeKey), Nullable: storage.NotNull()},
			{Name: extract.ColProductID, Type: storage.TypeBigInt, References: ref(t.Product, extract.ColProductID), Nullable: storage.NotNull()},
			{Name: extract.ColCustomerID, Type: storage.TypeBigInt, References: ref(t.Customer, extract.ColCustomerID), Nullable: storage.NotNull()},
			{Name: extract.ColEmployeeID, Type: storage.TypeBigInt, References: ref(t.Employee, extract.ColEmployeeID), Nullable: storage.NotNull()},
			{Name: extract.ColStoreID, Type: storage.TypeBigInt, References: ref(t.Store, extract.ColStoreID), Nullable: storage.NotNull()},
			{Name: colQuantity, Type: storage.TypeBigInt, Nullable: storage.NotNull()},
			{Name: colRevenue, Type: storage.TypeDecimal, Nullable: storage.NotNull()},
			{Name: colDiscount, Type: storage.TypeDecimal, Nullable: storage.NotNull()},
		},
	}
}

// inferType picks a logical column type from the non-NULL values in column i.
// Mixed kinds widen to text; an all-NULL column is text.
func inferType(rows [][]any, i int) string {
	kind := ""
	widen := func(k string) {
		switch {
		case kind == "" || kind == k:
			kind = k
		case (kind == storage.TypeBigInt && k == storage.TypeDouble) || (kind == storage.TypeDouble && k == storage.TypeBigInt):
			kind = storage.TypeDouble
		case (kind == storage.TypeDate && k == storage.TypeTimestamp) || (kind == storage.TypeTimestamp && k == storage.TypeDate):
			kind = storage.TypeTimestamp
		default:
			kind = storage.TypeText
		}
	}
	for _, r := range rows {
		if i >= len(r) {
			continue
		}
		switch v := r[i].(type) {
		case nil:
		case int, int32, int64:
			widen(storage.TypeBigInt)
		case float32, float64:
			widen(storage.TypeDouble)
		case decimal.Decimal:
			widen(storage.TypeDecimal)
		case bool:
			widen(storage.TypeBoolean)
		case time.Time:
			if v.Equal(storage.DateOf(v)) {
				widen(storage.TypeDate)
			} else {
				widen(storage.TypeTimestamp)
			}
		default:
			widen(storage.TypeText)
		}
	}
	if kind == "" {
		return storage.TypeText
	}
	return kind
}
