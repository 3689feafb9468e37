// Package mysql registers the "mysql" source and warehouse backends
// (go-sql-driver/mysql). MySQL is the store the sales system was originally
// built on, so it is the usual source kind.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"salesdw/internal/storage"
	"salesdw/internal/storage/sqldb"
)

// MySQL server error numbers we branch on.
const (
	erNoSuchTable     = 1146 // ER_NO_SUCH_TABLE
	erBadDB           = 1049 // ER_BAD_DB_ERROR
	erAccessDenied    = 1045 // ER_ACCESS_DENIED_ERROR
	erConCountError   = 1040 // ER_CON_COUNT_ERROR
	erServerShutdown  = 1053 // ER_SERVER_SHUTDOWN
	erDBAccessDenied  = 1044 // ER_DBACCESS_DENIED_ERROR
	maxPreparedParams = 65535
)

func init() {
	storage.RegisterSource("mysql", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		return Open(ctx, cfg)
	})
	storage.RegisterWarehouse("mysql", func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		return Open(ctx, cfg)
	})
}

// Dialect is the MySQL flavour of sqldb.Dialect.
var Dialect = sqldb.Dialect{
	Name:        "mysql",
	QuoteIdent:  mysqlIdent,
	Placeholder: sqldb.QuestionPlaceholder,
	ColumnType:  columnType,
	MaxParams:   maxPreparedParams - 535,
	Classify:    classify,
}

// Open parses cfg.DSN with mysql.ParseDSN and forces parseTime so DATE and
// DATETIME columns scan as time.Time.
func Open(ctx context.Context, cfg storage.Config) (*sqldb.Repo, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: empty dsn")
	}
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	mc.ParseTime = true
	cfg.DSN = mc.FormatDSN()
	return sqldb.Open(ctx, "mysql", cfg, Dialect)
}

func mysqlIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func columnType(logical string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeDouble:
		return "DOUBLE", nil
	case storage.TypeDecimal:
		return "DECIMAL(18,4)", nil
	case storage.TypeDate:
		return "DATE", nil
	case storage.TypeTimestamp:
		return "DATETIME(6)", nil
	case storage.TypeBoolean:
		return "TINYINT(1)", nil
	case storage.TypeText:
		return "TEXT", nil
	}
	if n, ok := storage.ParseVarchar(logical); ok {
		return fmt.Sprintf("VARCHAR(%d)", n), nil
	}
	return "", fmt.Errorf("unsupported column type %q", logical)
}

func classify(err error) storage.ErrorKind {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return storage.KindConnection
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return storage.KindUnknown
	}
	switch me.Number {
	case erNoSuchTable:
		return storage.KindTableNotFound
	case erBadDB, erAccessDenied, erDBAccessDenied, erConCountError, erServerShutdown:
		return storage.KindConnection
	}
	return storage.KindUnknown
}
