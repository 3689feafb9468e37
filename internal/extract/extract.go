// Package extract reads the five source tables of the sales system into
// typed, in-memory batches. Every failure here is fatal for the run and
// happens before anything is written to the warehouse.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"salesdw/internal/storage"
)

// Tables names the physical source tables.
type Tables struct {
	Sales     string `json:"sales" mapstructure:"sales"`
	Customers string `json:"customers" mapstructure:"customers"`
	Products  string `json:"products" mapstructure:"products"`
	Stores    string `json:"stores" mapstructure:"stores"`
	Employees string `json:"employees" mapstructure:"employees"`
}

// DefaultTables returns the conventional table names.
func DefaultTables() Tables {
	return Tables{
		Sales:     "sales",
		Customers: "customers",
		Products:  "products",
		Stores:    "stores",
		Employees: "employees",
	}
}

// WithDefaults fills empty names from DefaultTables.
func (t Tables) WithDefaults() Tables {
	d := DefaultTables()
	if strings.TrimSpace(t.Sales) == "" {
		t.Sales = d.Sales
	}
	if strings.TrimSpace(t.Customers) == "" {
		t.Customers = d.Customers
	}
	if strings.TrimSpace(t.Products) == "" {
		t.Products = d.Products
	}
	if strings.TrimSpace(t.Stores) == "" {
		t.Stores = d.Stores
	}
	if strings.TrimSpace(t.Employees) == "" {
		t.Employees = d.Employees
	}
	return t
}

// Default source column names. The warehouse schema always uses these.
const (
	ColSaleID     = "sale_id"
	ColDate       = "date"
	ColProductID  = "product_id"
	ColCustomerID = "customer_id"
	ColEmployeeID = "employee_id"
	ColStoreID    = "store_id"
	ColQuantity   = "quantity"
	ColDiscount   = "discount"
	ColName       = "name"
	ColEmail      = "email"
	ColGender     = "gender"
	ColBirthDate  = "birth_date"
	ColCategory   = "category"
	ColPrice      = "price"
)

// Columns names the source columns the extractor reads. Name applies to both
// products and customers. Store and employee tables only need their id
// column; every other column there is carried through under its own name.
type Columns struct {
	SaleID     string `json:"sale_id" mapstructure:"sale_id"`
	Date       string `json:"date" mapstructure:"date"`
	ProductID  string `json:"product_id" mapstructure:"product_id"`
	CustomerID string `json:"customer_id" mapstructure:"customer_id"`
	EmployeeID string `json:"employee_id" mapstructure:"employee_id"`
	StoreID    string `json:"store_id" mapstructure:"store_id"`
	Quantity   string `json:"quantity" mapstructure:"quantity"`
	Discount   string `json:"discount" mapstructure:"discount"`
	Name       string `json:"name" mapstructure:"name"`
	Email      string `json:"email" mapstructure:"email"`
	Gender     string `json:"gender" mapstructure:"gender"`
	BirthDate  string `json:"birth_date" mapstructure:"birth_date"`
	Category   string `json:"category" mapstructure:"category"`
	Price      string `json:"price" mapstructure:"price"`
}

// DefaultColumns returns the conventional column names.
func DefaultColumns() Columns {
	return Columns{
		SaleID:     ColSaleID,
		Date:       ColDate,
		ProductID:  ColProductID,
		CustomerID: ColCustomerID,
		EmployeeID: ColEmployeeID,
		StoreID:    ColStoreID,
		Quantity:   ColQuantity,
		Discount:   ColDiscount,
		Name:       ColName,
		Email:      ColEmail,
		Gender:     ColGender,
		BirthDate:  ColBirthDate,
		Category:   ColCategory,
		Price:      ColPrice,
	}
}

// WithDefaults fills empty names from DefaultColumns.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&c.SaleID, d.SaleID)
	fill(&c.Date, d.Date)
	fill(&c.ProductID, d.ProductID)
	fill(&c.CustomerID, d.CustomerID)
	fill(&c.EmployeeID, d.EmployeeID)
	fill(&c.StoreID, d.StoreID)
	fill(&c.Quantity, d.Quantity)
	fill(&c.Discount, d.Discount)
	fill(&c.Name, d.Name)
	fill(&c.Email, d.Email)
	fill(&c.Gender, d.Gender)
	fill(&c.BirthDate, d.BirthDate)
	fill(&c.Category, d.Category)
	fill(&c.Price, d.Price)
	return c
}

// Sale is one row of the sales table.
type Sale struct {
	SaleID     int64
	Date       time.Time
	ProductID  int64
	CustomerID int64
	EmployeeID int64
	StoreID    int64
	Quantity   int64
	Discount   decimal.Decimal // fraction in [0,1]; NULL reads as zero
}

// Product is one row of the products table. Name and Category are carried
// through untouched.
type Product struct {
	ID       int64
	Name     any
	Category any
	Price    decimal.Decimal
}

// Customer is one row of the customers table.
type Customer struct {
	ID        int64
	Name      any
	Email     any
	Gender    any
	BirthDate *time.Time // nil when unknown
}

// Batch is everything one run extracted. Stores and employees are carried
// whole: every source column lands in the warehouse dimension.
type Batch struct {
	// Columns are the source names the batch was read with.
	Columns Columns

	Sales     []Sale
	Products  []Product
	Customers []Customer
	Stores    *storage.Frame
	Employees *storage.Frame
}

// Error is a fatal extraction failure.
type Error struct {
	Table  string
	Column string
	Row    int // 1-based data row, 0 when the failure is table-level
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("extract: %s row %d column %s: %v", e.Table, e.Row, e.Column, e.Err)
	case e.Column != "":
		return fmt.Sprintf("extract: %s column %s: %v", e.Table, e.Column, e.Err)
	default:
		return fmt.Sprintf("extract: %s: %v", e.Table, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Extractor reads every source table in full.
type Extractor struct {
	Source  storage.Source
	Tables  Tables
	Columns Columns
	Logger  *slog.Logger
	Clock   clockwork.Clock
}

// Extract reads and types all five tables. The first failure aborts.
func (e *Extractor) Extract(ctx context.Context) (*Batch, error) {
	log := e.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	clock := e.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	tables := e.Tables.WithDefaults()
	cols := e.Columns.WithDefaults()

	read := func(table string) (*storage.Frame, error) {
		start := clock.Now()
		f, err := e.Source.ReadTable(ctx, table)
		if err != nil {
			return nil, &Error{Table: table, Err: err}
		}
		log.Debug("source table read", "stage", "extract", "table", table, "rows", f.Len(), "ms", clock.Since(start).Milliseconds())
		return f, nil
	}

	b := &Batch{Columns: cols}

	f, err := read(tables.Sales)
	if err != nil {
		return nil, err
	}
	if b.Sales, err = decodeSales(tables.Sales, f, cols); err != nil {
		return nil, err
	}

	if f, err = read(tables.Products); err != nil {
		return nil, err
	}
	if b.Products, err = decodeProducts(tables.Products, f, cols); err != nil {
		return nil, err
	}

	if f, err = read(tables.Customers); err != nil {
		return nil, err
	}
	if b.Customers, err = decodeCustomers(tables.Customers, f, cols); err != nil {
		return nil, err
	}

	if b.Stores, err = read(tables.Stores); err != nil {
		return nil, err
	}
	if err := checkIDColumn(tables.Stores, b.Stores, cols.StoreID); err != nil {
		return nil, err
	}

	if b.Employees, err = read(tables.Employees); err != nil {
		return nil, err
	}
	if err := checkIDColumn(tables.Employees, b.Employees, cols.EmployeeID); err != nil {
		return nil, err
	}

	log.Info("extraction complete", "stage", "extract",
		"sales", len(b.Sales), "products", len(b.Products), "customers", len(b.Customers),
		"stores", b.Stores.Len(), "employees", b.Employees.Len())
	return b, nil
}
