// Package sqlite registers the "sqlite" source and warehouse backends
// (pure-Go modernc.org/sqlite driver).
//
// Key design points vs Postgres:
//   - SQLite has no native DATE/TIMESTAMP storage class. Dates are bound as
//     "YYYY-MM-DD" text and timestamps as RFC3339Nano text for reliable
//     round-trip behavior and easy debugging.
//   - A missing table is detected from sqlite_master, because the driver only
//     reports the generic SQLITE_ERROR code for "no such table".
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"salesdw/internal/storage"
	"salesdw/internal/storage/sqldb"
)

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER (32766 since 3.32).
const maxParams = 32000

func init() {
	storage.RegisterSource("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		return Open(ctx, cfg)
	})
	storage.RegisterWarehouse("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		return Open(ctx, cfg)
	})
}

// Dialect is the SQLite flavour of sqldb.Dialect.
var Dialect = sqldb.Dialect{
	Name:        "sqlite",
	QuoteIdent:  sqlIdent,
	Placeholder: sqldb.QuestionPlaceholder,
	ColumnType:  columnType,
	MaxParams:   maxParams,
	Classify:    classify,
	TableExists: tableExists,
	BindValue:   bindValue,
}

// Open opens cfg.DSN (a file path or "file:" URI) with the modernc driver.
func Open(ctx context.Context, cfg storage.Config) (*sqldb.Repo, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: empty dsn")
	}
	return sqldb.Open(ctx, "sqlite", cfg, Dialect)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// columnType maps logical types onto SQLite declared types. The declared
// names matter: modernc parses TEXT stored in DATE/TIMESTAMP columns back
// into time.Time on read.
func columnType(logical string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case storage.TypeBigInt:
		return "INTEGER", nil
	case storage.TypeDouble:
		return "REAL", nil
	case storage.TypeDecimal:
		return "NUMERIC", nil
	case storage.TypeDate:
		return "DATE", nil
	case storage.TypeTimestamp:
		return "TIMESTAMP", nil
	case storage.TypeBoolean:
		return "INTEGER", nil
	case storage.TypeText:
		return "TEXT", nil
	}
	if _, ok := storage.ParseVarchar(logical); ok {
		return "TEXT", nil
	}
	return "", fmt.Errorf("unsupported column type %q", logical)
}

// tableExists checks the catalog. Schema-qualified names ("main.t") check the
// unqualified part.
func tableExists(ctx context.Context, q sqldb.Querier, table string) (bool, error) {
	name := table
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func classify(err error) storage.ErrorKind {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return storage.KindUnknown
	}
	switch se.Code() & 0xff { // primary result code
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR:
		return storage.KindConnection
	}
	return storage.KindUnknown
}

func bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return formatSQLiteTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return formatSQLiteTime(*t)
	case decimal.Decimal:
		return t.String()
	}
	return v
}

// formatSQLiteTime formats calendar dates (UTC midnight) as YYYY-MM-DD and
// everything else as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		return u.Format(time.DateOnly)
	}
	return u.Format(time.RFC3339Nano)
}
