// Package postgres registers the "postgres" source and warehouse backends
// over a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"salesdw/internal/storage"
	"salesdw/internal/storage/sqldb"
)

// maxParams stays under the 65535 bind parameters of the extended protocol.
const maxParams = 60000

func init() {
	storage.RegisterSource("postgres", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		return Open(ctx, cfg)
	})
	storage.RegisterWarehouse("postgres", func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		return Open(ctx, cfg)
	})
}

// Dialect is the Postgres flavour of sqldb.Dialect. Only the statement
// builders are shared; execution goes through pgx directly.
var Dialect = sqldb.Dialect{
	Name:        "postgres",
	QuoteIdent:  pgIdent,
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	ColumnType:  columnType,
	MaxParams:   maxParams,
	Classify:    classify,
	BindValue:   bindValue,
}

// Repo implements storage.Source and storage.Warehouse for Postgres.
type Repo struct {
	pool    *pgxpool.Pool
	maxRows int
}

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, cfg storage.Config) (*Repo, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: empty dsn")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.NewTableError("connect", "", err, classify)
	}
	r := &Repo{pool: pool, maxRows: sqldb.DefaultMaxRows}
	if v := cfg.Option("batch_size", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			pool.Close()
			return nil, fmt.Errorf("postgres: invalid batch_size %q", v)
		}
		r.maxRows = n
	}
	return r, nil
}

// Close closes the connection pool.
func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repo) ReadTable(ctx context.Context, table string) (*storage.Frame, error) {
	return r.ReadColumns(ctx, table, nil)
}

func (r *Repo) ReadColumns(ctx context.Context, table string, columns []string) (*storage.Frame, error) {
	rows, err := r.pool.Query(ctx, sqldb.BuildSelectSQL(Dialect, table, columns))
	if err != nil {
		return nil, storage.NewTableError("read", table, err, classify)
	}
	f, err := scanFrame(rows)
	if err != nil {
		return nil, storage.NewTableError("read", table, err, classify)
	}
	return f, nil
}

// CreateTable creates the schema of a qualified name first, then the table.
func (r *Repo) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return storage.NewTableError("create", spec.Name, err, classify)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return storage.NewTableError("create", spec.Name, err, classify)
	}
	return nil
}

// InsertRows writes every chunk inside one transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("postgres: insert %s: row %d has %d values for %d columns", table, i, len(row), len(columns))
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, storage.NewTableError("insert", table, err, classify)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams, r.maxRows) {
		q, args := sqldb.BuildInsertSQL(Dialect, table, columns, chunk)
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, storage.NewTableError("insert", table, err, classify)
		}
		total += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storage.NewTableError("insert", table, err, classify)
	}
	return total, nil
}

func scanFrame(rows pgx.Rows) (*storage.Frame, error) {
	defer rows.Close()

	fds := rows.FieldDescriptions()
	f := &storage.Frame{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		f.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = convertValue(v)
		}
		f.Rows = append(f.Rows, vals)
	}
	return f, rows.Err()
}

// convertValue flattens pgtype wrappers into plain Go values.
func convertValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		if !t.NaN && t.InfinityModifier == pgtype.Finite && t.Int != nil {
			return decimal.NewFromBigInt(t.Int, t.Exp).String()
		}
		dv, err := t.Value()
		if err != nil {
			return nil
		}
		return dv
	case []byte:
		return string(t)
	}
	return v
}

func bindValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.String()
	}
	return v
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// splitQualifiedName splits "schema.table".
//
// This helper is intentionally conservative: it only handles a single dot.
// If callers pass a more complex expression, we treat it as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// buildCreateSQL builds DDL for the table plus CREATE SCHEMA for qualified
// names.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgIdent(schema))
	}
	tableSQL, err = sqldb.BuildCreateSQL(Dialect, t)
	return schemaSQL, tableSQL, err
}

func columnType(logical string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeDouble:
		return "DOUBLE PRECISION", nil
	case storage.TypeDecimal:
		return "NUMERIC(18,4)", nil
	case storage.TypeDate:
		return "DATE", nil
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ", nil
	case storage.TypeBoolean:
		return "BOOLEAN", nil
	case storage.TypeText:
		return "TEXT", nil
	}
	if n, ok := storage.ParseVarchar(logical); ok {
		return fmt.Sprintf("VARCHAR(%d)", n), nil
	}
	return "", fmt.Errorf("unsupported column type %q", logical)
}

// classify branches on SQLSTATE:
//   - 42P01 undefined_table
//   - class 08 connection exceptions, 28 invalid authorization, 3D000 invalid catalog, 57P0x shutdown
func classify(err error) storage.ErrorKind {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch {
		case pe.Code == "42P01":
			return storage.KindTableNotFound
		case strings.HasPrefix(pe.Code, "08"),
			strings.HasPrefix(pe.Code, "28"),
			pe.Code == "3D000",
			strings.HasPrefix(pe.Code, "57P0"):
			return storage.KindConnection
		}
		return storage.KindUnknown
	}
	var ce *pgconn.ConnectError
	if errors.As(err, &ce) || pgconn.Timeout(err) {
		return storage.KindConnection
	}
	return storage.KindUnknown
}

var (
	_ storage.Source    = (*Repo)(nil)
	_ storage.Warehouse = (*Repo)(nil)
)
