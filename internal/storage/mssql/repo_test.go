package mssql

import (
	"context"
	"errors"
	"net"
	"regexp"
	"syscall"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdw/internal/storage"
	"salesdw/internal/storage/sqldb"
)

func newMock(t *testing.T) (*sqldb.Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqldb.New(db, Dialect), mock
}

func TestReadColumns_InvalidObjectNameIsTableNotFound(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT [time_key] FROM [dbo].[dim_time]")).
		WillReturnError(mssql.Error{Number: 208, Message: "Invalid object name 'dbo.dim_time'."})

	_, err := r.ReadColumns(context.Background(), "dbo.dim_time", []string{"time_key"})
	require.Error(t, err)
	assert.True(t, storage.IsTableNotFound(err))

	var te *storage.TableError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "read", te.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadColumns_LoginFailedIsConnection(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery("SELECT").WillReturnError(mssql.Error{Number: 18456, Message: "Login failed"})

	_, err := r.ReadColumns(context.Background(), "dim_time", []string{"time_key"})
	require.Error(t, err)
	assert.True(t, storage.IsConnection(err))
	assert.False(t, storage.IsTableNotFound(err))
}

func TestReadColumns_OtherErrorsStayUnclassified(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery("SELECT").WillReturnError(mssql.Error{Number: 207, Message: "Invalid column name"})

	_, err := r.ReadColumns(context.Background(), "dim_time", []string{"nope"})
	require.Error(t, err)
	assert.False(t, storage.IsTableNotFound(err))
	assert.False(t, storage.IsConnection(err))
}

func TestReadColumns_ResetIsConnection(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery("SELECT").WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET})

	_, err := r.ReadColumns(context.Background(), "dim_time", []string{"time_key"})
	require.Error(t, err)
	assert.True(t, storage.IsConnection(err))
}

func TestReadColumns_EmptyTable(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"time_key"}))

	f, err := r.ReadColumns(context.Background(), "dim_time", []string{"time_key"})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestInsertRows_UsesNumberedParamsInOneTransaction(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [fact_sales] ([sale_id], [quantity]) VALUES (@p1, @p2), (@p3, @p4)")).
		WithArgs(int64(1), int64(3), int64(2), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := r.InsertRows(context.Background(), "fact_sales", []string{"sale_id", "quantity"}, [][]any{
		{int64(1), int64(3)},
		{int64(2), int64(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRows_RollsBackOnFailure(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(mssql.Error{Number: 2627, Message: "Violation of PRIMARY KEY constraint"})
	mock.ExpectRollback()

	_, err := r.InsertRows(context.Background(), "fact_sales", []string{"sale_id"}, [][]any{{int64(1)}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTable_DDLShape(t *testing.T) {
	r, mock := newMock(t)

	spec := storage.TableSpec{
		Name:       "dim_product",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "product_id", Type: storage.TypeBigInt},
		Columns: []storage.ColumnSpec{
			{Name: "name", Type: storage.TypeText},
			{Name: "price", Type: storage.TypeDecimal},
		},
	}
	want := "CREATE TABLE [dim_product] (\n" +
		"  [product_id] BIGINT NOT NULL PRIMARY KEY,\n" +
		"  [name] NVARCHAR(MAX),\n" +
		"  [price] DECIMAL(18,4)\n" +
		")"
	mock.ExpectExec(regexp.QuoteMeta(want)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.CreateTable(context.Background(), spec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMssqlIdent_EscapesBrackets(t *testing.T) {
	t.Parallel()

	if got := mssqlIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("mssqlIdent=%q", got)
	}
	if got := sqldb.TableIdent(Dialect, "dbo.imports"); got != "[dbo].[imports]" {
		t.Fatalf("TableIdent=%q", got)
	}
}

func TestColumnType_Varchar(t *testing.T) {
	t.Parallel()

	got, err := columnType("varchar(16)")
	if err != nil || got != "NVARCHAR(16)" {
		t.Fatalf("columnType(varchar(16))=%q err=%v", got, err)
	}
	got, _ = columnType("varchar(9000)")
	if got != "NVARCHAR(MAX)" {
		t.Fatalf("columnType(varchar(9000))=%q", got)
	}
}
