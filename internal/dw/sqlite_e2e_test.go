package dw_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdw/internal/dw"
	"salesdw/internal/extract"
	"salesdw/internal/storage"
	"salesdw/internal/storage/sqldb"
	"salesdw/internal/storage/sqlite"
)

func openSQLite(t *testing.T, name string) *sqldb.Repo {
	t.Helper()
	r, err := sqlite.Open(context.Background(), storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), name)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func seedTable(t *testing.T, r *sqldb.Repo, spec storage.TableSpec, rows ...[]any) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.CreateTable(ctx, spec))
	_, err := r.InsertRows(ctx, spec.Name, spec.ColumnNames(), rows)
	require.NoError(t, err)
}

func col(name, typ string) storage.ColumnSpec { return storage.ColumnSpec{Name: name, Type: typ} }

func pk(name string) *storage.PrimaryKeySpec {
	return &storage.PrimaryKeySpec{Name: name, Type: storage.TypeBigInt}
}

func seedSource(t *testing.T, src *sqldb.Repo) {
	seedTable(t, src, storage.TableSpec{
		Name:       "ventas",
		PrimaryKey: pk("sale_id"),
		Columns: []storage.ColumnSpec{
			col("date", storage.TypeDate), col("product_id", storage.TypeBigInt), col("customer_id", storage.TypeBigInt),
			col("employee_id", storage.TypeBigInt), col("store_id", storage.TypeBigInt), col("quantity", storage.TypeBigInt),
			col("discount", storage.TypeDecimal),
		},
	},
		[]any{int64(1), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), int64(10), int64(7), int64(3), int64(2), int64(5), "0.1"},
		[]any{int64(2), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int64(10), int64(8), int64(3), int64(2), int64(2), nil},
	)
	seedTable(t, src, storage.TableSpec{
		Name:       "productos",
		PrimaryKey: pk("product_id"),
		Columns:    []storage.ColumnSpec{col("name", storage.TypeText), col("category", storage.TypeText), col("price", storage.TypeDecimal)},
	}, []any{int64(10), "Lamp", "Home", "10.0"})
	seedTable(t, src, storage.TableSpec{
		Name:       "clientes",
		PrimaryKey: pk("customer_id"),
		Columns: []storage.ColumnSpec{
			col("name", storage.TypeText), col("email", storage.TypeText), col("gender", storage.TypeText), col("birth_date", storage.TypeDate),
		},
	},
		[]any{int64(7), "Ana", "ana@example.com", "F", time.Date(1990, 5, 2, 0, 0, 0, 0, time.UTC)},
		[]any{int64(8), "Luis", nil, "M", nil},
	)
	seedTable(t, src, storage.TableSpec{
		Name:       "tiendas",
		PrimaryKey: pk("store_id"),
		Columns:    []storage.ColumnSpec{col("name", storage.TypeText), col("city", storage.TypeText)},
	}, []any{int64(2), "Centro", "Lima"})
	seedTable(t, src, storage.TableSpec{
		Name:       "empleados",
		PrimaryKey: pk("employee_id"),
		Columns:    []storage.ColumnSpec{col("name", storage.TypeText)},
	}, []any{int64(3), "Rosa"})
}

func TestSQLite_EndToEndIncremental(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "oltp.db")
	wh := openSQLite(t, "dw.db")
	seedSource(t, src)

	engine := func() *dw.Engine {
		return &dw.Engine{
			Source:            src,
			Warehouse:         wh,
			Tables:            extract.Tables{Sales: "ventas", Products: "productos", Customers: "clientes", Stores: "tiendas", Employees: "empleados"},
			EnforceReferences: true,
			Clock:             clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		}
	}

	rep, err := engine().Run(ctx)
	require.NoError(t, err)
	for _, o := range rep.Tables {
		assert.Equal(t, dw.StatusCreated, o.Status, o.Table)
	}

	timeRows, err := wh.ReadColumns(ctx, "dim_time", []string{"time_key", "date", "season"})
	require.NoError(t, err)
	require.Equal(t, 2, timeRows.Len())
	d, err := storage.ParseTime(timeRows.Rows[0][1])
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", d.Format(time.DateOnly))
	assert.Equal(t, "Winter", timeRows.Rows[0][2])

	facts, err := wh.ReadColumns(ctx, "fact_sales", []string{"sale_id", "time_key", "revenue"})
	require.NoError(t, err)
	require.Equal(t, 2, facts.Len())
	assert.Equal(t, "2", storage.NormalizeKey(facts.Rows[0][1]), "sale 1 on 2024-01-02 gets time key 2")
	assert.Equal(t, "45", storage.NormalizeKey(facts.Rows[0][2]))

	// Unchanged source: every table is present and nothing is new.
	rep, err = engine().Run(ctx)
	require.NoError(t, err)
	for _, o := range rep.Tables {
		assert.Equal(t, dw.StatusInserted, o.Status, o.Table)
		assert.Zero(t, o.Inserted, o.Table)
	}

	// A new day and a new sale load incrementally.
	_, err = src.InsertRows(ctx, "ventas",
		[]string{"sale_id", "date", "product_id", "customer_id", "employee_id", "store_id", "quantity", "discount"},
		[][]any{{int64(3), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), int64(10), int64(7), int64(3), int64(2), int64(1), "0"}})
	require.NoError(t, err)

	rep, err = engine().Run(ctx)
	require.NoError(t, err)
	inserted := map[string]int64{}
	for _, o := range rep.Tables {
		inserted[o.Table] = o.Inserted
	}
	assert.Equal(t, map[string]int64{
		"dim_time": 1, "dim_product": 0, "dim_customer": 0, "dim_store": 0, "dim_employee": 0, "fact_sales": 1,
	}, inserted)

	timeRows, err = wh.ReadColumns(ctx, "dim_time", []string{"time_key"})
	require.NoError(t, err)
	assert.Equal(t, "3", storage.NormalizeKey(timeRows.Rows[2][0]))
}

func TestSQLite_OriginalSpanishSchema(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t, "tienda.db")
	wh := openSQLite(t, "dw.db")

	seedTable(t, src, storage.TableSpec{
		Name:       "ventas",
		PrimaryKey: pk("id_venta"),
		Columns: []storage.ColumnSpec{
			col("fecha", storage.TypeDate), col("id_producto", storage.TypeBigInt), col("id_cliente", storage.TypeBigInt),
			col("id_empleado", storage.TypeBigInt), col("id_tienda", storage.TypeBigInt), col("cantidad", storage.TypeBigInt),
			col("descuento", storage.TypeDecimal),
		},
	}, []any{int64(1), time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), int64(10), int64(7), int64(3), int64(2), int64(5), "0.1"})
	seedTable(t, src, storage.TableSpec{
		Name:       "productos",
		PrimaryKey: pk("id_producto"),
		Columns:    []storage.ColumnSpec{col("nombre", storage.TypeText), col("categoria", storage.TypeText), col("precio", storage.TypeDecimal)},
	}, []any{int64(10), "Lampara", "Hogar", "10.0"})
	seedTable(t, src, storage.TableSpec{
		Name:       "clientes",
		PrimaryKey: pk("id_cliente"),
		Columns: []storage.ColumnSpec{
			col("nombre", storage.TypeText), col("correo", storage.TypeText), col("genero", storage.TypeText), col("fecha_nacimiento", storage.TypeDate),
		},
	}, []any{int64(7), "Ana", "ana@example.com", "F", time.Date(1990, 5, 2, 0, 0, 0, 0, time.UTC)})
	seedTable(t, src, storage.TableSpec{
		Name:       "tiendas",
		PrimaryKey: pk("id_tienda"),
		Columns:    []storage.ColumnSpec{col("nombre", storage.TypeText), col("ciudad", storage.TypeText)},
	}, []any{int64(2), "Centro", "Lima"})
	seedTable(t, src, storage.TableSpec{
		Name:       "empleados",
		PrimaryKey: pk("id_empleado"),
		Columns:    []storage.ColumnSpec{col("nombre", storage.TypeText)},
	}, []any{int64(3), "Rosa"})

	rep, err := (&dw.Engine{
		Source:    src,
		Warehouse: wh,
		Tables:    extract.Tables{Sales: "ventas", Customers: "clientes", Products: "productos", Stores: "tiendas", Employees: "empleados"},
		Columns: extract.Columns{
			SaleID: "id_venta", Date: "fecha", ProductID: "id_producto", CustomerID: "id_cliente",
			EmployeeID: "id_empleado", StoreID: "id_tienda", Quantity: "cantidad", Discount: "descuento",
			Name: "nombre", Email: "correo", Gender: "genero", BirthDate: "fecha_nacimiento",
			Category: "categoria", Price: "precio",
		},
		Clock: clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	}).Run(ctx)
	require.NoError(t, err)
	for _, o := range rep.Tables {
		assert.Equal(t, dw.StatusCreated, o.Status, o.Table)
		assert.Equal(t, int64(1), o.Inserted, o.Table)
	}

	// Warehouse keys use the canonical names; passthrough columns keep theirs.
	stores, err := wh.ReadColumns(ctx, "dim_store", []string{"store_id", "nombre", "ciudad"})
	require.NoError(t, err)
	require.Equal(t, 1, stores.Len())
	assert.Equal(t, "2", storage.NormalizeKey(stores.Rows[0][0]))
	assert.Equal(t, "Lima", stores.Rows[0][2])

	products, err := wh.ReadColumns(ctx, "dim_product", []string{"product_id", "name"})
	require.NoError(t, err)
	assert.Equal(t, "Lampara", products.Rows[0][1])

	facts, err := wh.ReadColumns(ctx, "fact_sales", []string{"sale_id", "store_id", "revenue"})
	require.NoError(t, err)
	require.Equal(t, 1, facts.Len())
	assert.Equal(t, "2", storage.NormalizeKey(facts.Rows[0][1]))
	assert.Equal(t, "45", storage.NormalizeKey(facts.Rows[0][2]))

	timeRows, err := wh.ReadColumns(ctx, "dim_time", []string{"season"})
	require.NoError(t, err)
	assert.Equal(t, "Summer", timeRows.Rows[0][0])
}
