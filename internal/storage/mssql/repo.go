// Package mssql registers the "mssql" source and warehouse backends for
// Microsoft SQL Server.
package mssql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"salesdw/internal/storage"
	"salesdw/internal/storage/sqldb"
)

// SQL Server error numbers we branch on.
const (
	errInvalidObjectName = 208   // Invalid object name '%.*ls'.
	errCannotOpenDB      = 4060  // Cannot open database requested by the login.
	errLoginFailed       = 18456 // Login failed for user.
)

func init() {
	storage.RegisterSource("mssql", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		return Open(ctx, cfg)
	})
	storage.RegisterWarehouse("mssql", func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		return Open(ctx, cfg)
	})
}

// Dialect is the SQL Server flavour of sqldb.Dialect.
//
// MaxParams stays under the 2100 parameter limit per RPC call and MaxRows
// under the 1000 row limit of a table value constructor.
var Dialect = sqldb.Dialect{
	Name:        "mssql",
	QuoteIdent:  mssqlIdent,
	Placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
	ColumnType:  columnType,
	MaxParams:   2000,
	MaxRows:     1000,
	Classify:    classify,
}

// Open connects with the "sqlserver" driver registered by go-mssqldb.
func Open(ctx context.Context, cfg storage.Config) (*sqldb.Repo, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mssql: empty dsn")
	}
	return sqldb.Open(ctx, "sqlserver", cfg, Dialect)
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func columnType(logical string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeDouble:
		return "FLOAT", nil
	case storage.TypeDecimal:
		return "DECIMAL(18,4)", nil
	case storage.TypeDate:
		return "DATE", nil
	case storage.TypeTimestamp:
		return "DATETIME2", nil
	case storage.TypeBoolean:
		return "BIT", nil
	case storage.TypeText:
		return "NVARCHAR(MAX)", nil
	}
	if n, ok := storage.ParseVarchar(logical); ok {
		if n > 4000 {
			return "NVARCHAR(MAX)", nil
		}
		return fmt.Sprintf("NVARCHAR(%d)", n), nil
	}
	return "", fmt.Errorf("unsupported column type %q", logical)
}

func classify(err error) storage.ErrorKind {
	var me mssql.Error
	if !errors.As(err, &me) {
		var mp *mssql.Error
		if !errors.As(err, &mp) || mp == nil {
			return storage.KindUnknown
		}
		me = *mp
	}
	switch me.Number {
	case errInvalidObjectName:
		return storage.KindTableNotFound
	case errCannotOpenDB, errLoginFailed:
		return storage.KindConnection
	}
	return storage.KindUnknown
}
