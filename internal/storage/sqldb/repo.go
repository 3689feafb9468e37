// Package sqldb is the shared database/sql implementation behind the SQLite,
// SQL Server and MySQL backends. Each backend supplies a Dialect; this package
// owns statement shape, chunking, transactions and error wrapping.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"salesdw/internal/storage"
)

// DefaultMaxRows bounds rows per INSERT statement when the caller does not
// configure insert_batch_size.
const DefaultMaxRows = 500

// Dialect captures the per-engine SQL differences.
type Dialect struct {
	// Name prefixes error messages ("sqlite", "mssql", "mysql").
	Name string

	// QuoteIdent quotes a single identifier part.
	QuoteIdent func(string) string

	// Placeholder returns the bind marker for the 1-based argument n.
	Placeholder func(n int) string

	// ColumnType maps a logical storage type to engine DDL.
	ColumnType func(logical string) (string, error)

	// MaxParams is the bind-parameter limit per statement.
	MaxParams int

	// MaxRows caps rows per multi-row VALUES list (0 = no engine cap).
	MaxRows int

	// Classify maps a driver error to a storage.ErrorKind using typed codes.
	Classify func(error) storage.ErrorKind

	// TableExists, when set, is consulted before reads so a missing table is
	// reported from the catalog instead of from a failed SELECT.
	TableExists func(ctx context.Context, q Querier, table string) (bool, error)

	// BindValue converts a Go value into the representation the driver
	// stores best. Nil means pass-through.
	BindValue func(any) any
}

// Repo implements storage.Source and storage.Warehouse over database/sql.
type Repo struct {
	db      dbConn
	d       Dialect
	maxRows int
}

// Open opens driverName with cfg.DSN, pings it, and wraps it in a Repo.
//
// cfg.Options["batch_size"] overrides DefaultMaxRows.
func Open(ctx context.Context, driverName string, cfg storage.Config, d Dialect) (*Repo, error) {
	raw, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name, err)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, storage.NewTableError("connect", "", err, d.Classify)
	}

	r := New(raw, d)
	if v := cfg.Option("batch_size", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			_ = raw.Close()
			return nil, fmt.Errorf("%s: invalid batch_size %q", d.Name, v)
		}
		r.maxRows = n
	}
	return r, nil
}

// New wraps an already-open *sql.DB (tests pass a sqlmock handle here).
func New(db *sql.DB, d Dialect) *Repo {
	return &Repo{db: &sqlDB{db: db}, d: d, maxRows: DefaultMaxRows}
}

// Close releases the underlying database handle.
func (r *Repo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// ReadTable returns every column of table.
func (r *Repo) ReadTable(ctx context.Context, table string) (*storage.Frame, error) {
	return r.ReadColumns(ctx, table, nil)
}

// ReadColumns returns the projection of table onto columns (all columns when
// columns is empty).
func (r *Repo) ReadColumns(ctx context.Context, table string, columns []string) (*storage.Frame, error) {
	if r.d.TableExists != nil {
		ok, err := r.d.TableExists(ctx, r.db, table)
		if err != nil {
			return nil, storage.NewTableError("read", table, err, r.d.Classify)
		}
		if !ok {
			return nil, storage.TableNotFound("read", table)
		}
	}

	rows, err := r.db.QueryContext(ctx, BuildSelectSQL(r.d, table, columns))
	if err != nil {
		return nil, storage.NewTableError("read", table, err, r.d.Classify)
	}
	f, err := storage.ScanFrame(rows)
	if err != nil {
		return nil, storage.NewTableError("read", table, err, r.d.Classify)
	}
	return f, nil
}

// CreateTable issues the CREATE TABLE for spec.
func (r *Repo) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	q, err := BuildCreateSQL(r.d, spec)
	if err != nil {
		return fmt.Errorf("%s: %w", r.d.Name, err)
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return storage.NewTableError("create", spec.Name, err, r.d.Classify)
	}
	return nil
}

// InsertRows appends rows inside one transaction, one multi-row INSERT per
// chunk. A failed chunk rolls back every earlier chunk of the same call.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("%s: insert %s: row %d has %d values for %d columns", r.d.Name, table, i, len(row), len(columns))
		}
	}

	maxRows := r.maxRows
	if r.d.MaxRows > 0 && (maxRows <= 0 || maxRows > r.d.MaxRows) {
		maxRows = r.d.MaxRows
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.NewTableError("insert", table, err, r.d.Classify)
	}

	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), r.d.MaxParams, maxRows) {
		q, args := BuildInsertSQL(r.d, table, columns, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, storage.NewTableError("insert", table, err, r.d.Classify)
		}
		n, err := res.RowsAffected()
		if err != nil || n < 0 {
			n = int64(len(chunk))
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, storage.NewTableError("insert", table, err, r.d.Classify)
	}
	return total, nil
}

// compile-time interface checks.
var (
	_ storage.Source    = (*Repo)(nil)
	_ storage.Warehouse = (*Repo)(nil)
)
