package postgres

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"salesdw/internal/storage"
	"salesdw/internal/storage/sqldb"
)

func TestBuildCreateSQL_QualifiedNameCreatesSchema(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "dw.dim_time",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "time_key", Type: storage.TypeBigInt},
		Columns: []storage.ColumnSpec{
			{Name: "date", Type: storage.TypeDate, Nullable: storage.NotNull()},
			{Name: "month_name", Type: storage.TypeVarchar(16), Nullable: storage.NotNull()},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"date", "month_name"}}},
	}

	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "dw"` {
		t.Fatalf("unexpected schemaSQL: %q", schemaSQL)
	}
	for _, want := range []string{
		`CREATE TABLE "dw"."dim_time"`,
		`"time_key" BIGINT NOT NULL PRIMARY KEY`,
		`"date" DATE NOT NULL`,
		`"month_name" VARCHAR(16) NOT NULL`,
		`UNIQUE ("date", "month_name")`,
	} {
		if !strings.Contains(tableSQL, want) {
			t.Fatalf("tableSQL missing %q:\n%s", want, tableSQL)
		}
	}
}

func TestBuildCreateSQL_UnqualifiedNameSkipsSchema(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "fact_sales",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "sale_id", Type: storage.TypeBigInt},
	}
	schemaSQL, _, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != "" {
		t.Fatalf("expected no schema DDL, got %q", schemaSQL)
	}
}

func TestBuildInsertSQL_PlaceholderNumbering(t *testing.T) {
	t.Parallel()

	q, args := sqldb.BuildInsertSQL(Dialect, "fact_sales", []string{"sale_id", "revenue"}, [][]any{
		{int64(1), decimal.RequireFromString("19.80")},
		{int64(2), nil},
	})
	want := `INSERT INTO "fact_sales" ("sale_id", "revenue") VALUES ($1, $2), ($3, $4)`
	if q != want {
		t.Fatalf("sql=%q want %q", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[1] != "19.8" {
		t.Fatalf("decimal should bind as string, got %T %v", args[1], args[1])
	}
	if args[3] != nil {
		t.Fatalf("nil should stay nil, got %v", args[3])
	}
}

func TestClassify_SQLState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want storage.ErrorKind
	}{
		{"42P01", storage.KindTableNotFound},
		{"08006", storage.KindConnection},
		{"28P01", storage.KindConnection},
		{"3D000", storage.KindConnection},
		{"57P01", storage.KindConnection},
		{"23505", storage.KindUnknown},
		{"42703", storage.KindUnknown},
	}
	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: tt.code, Message: "x"})
		if got := classify(err); got != tt.want {
			t.Fatalf("classify(%s)=%s want %s", tt.code, got, tt.want)
		}
	}
	if got := classify(errors.New("plain")); got != storage.KindUnknown {
		t.Fatalf("classify(plain)=%s", got)
	}
}

func TestNewTableError_UndefinedTable(t *testing.T) {
	t.Parallel()

	err := storage.NewTableError("read", "dim_time", &pgconn.PgError{Code: "42P01"}, classify)
	if !storage.IsTableNotFound(err) {
		t.Fatalf("expected table-not-found, got %v", err)
	}
}

func TestConvertValue_Numeric(t *testing.T) {
	t.Parallel()

	n := pgtype.Numeric{Int: big.NewInt(1980), Exp: -2, Valid: true}
	got := convertValue(n)
	d, err := decimal.NewFromString(fmt.Sprint(got))
	if err != nil {
		t.Fatalf("numeric did not convert to a decimal string: %v (%v)", got, err)
	}
	if !d.Equal(decimal.RequireFromString("19.80")) {
		t.Fatalf("numeric=%v want 19.80", d)
	}
	if convertValue(pgtype.Numeric{}) != nil {
		t.Fatalf("invalid numeric must convert to nil")
	}
	if convertValue([]byte("x")) != "x" {
		t.Fatalf("bytes must convert to string")
	}
}
