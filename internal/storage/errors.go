package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrTableNotFound reports that the target table does not exist. For the
	// incremental loader this is the bootstrap condition, not a failure.
	ErrTableNotFound = errors.New("table not found")

	// ErrConnection reports a transport-level failure (refused, reset, timeout).
	ErrConnection = errors.New("connection error")
)

// ErrorKind classifies storage failures so callers can branch on type
// instead of inspecting driver error text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTableNotFound
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindTableNotFound:
		return "table_not_found"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// TableError is the error every backend returns from table-level operations.
type TableError struct {
	Op    string // "read", "create", "insert"
	Table string
	Kind  ErrorKind
	Err   error
}

func (e *TableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage: %s %s: %s", e.Op, e.Table, e.Kind)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTableNotFound) and errors.Is(err, ErrConnection)
// work off the classified Kind.
func (e *TableError) Is(target error) bool {
	switch target {
	case ErrTableNotFound:
		return e.Kind == KindTableNotFound
	case ErrConnection:
		return e.Kind == KindConnection
	}
	return false
}

// NewTableError wraps err for table, classifying it with classify. When
// classify returns KindUnknown, the generic transport classification is
// used. A nil err returns nil.
func NewTableError(op, table string, err error, classify func(error) ErrorKind) error {
	if err == nil {
		return nil
	}
	var te *TableError
	if errors.As(err, &te) {
		return err
	}
	kind := KindUnknown
	if classify != nil {
		kind = classify(err)
	}
	if kind == KindUnknown {
		kind = ClassifyTransport(err)
	}
	return &TableError{Op: op, Table: table, Kind: kind, Err: err}
}

// TableNotFound builds the error a backend returns after a catalog lookup says
// table is absent.
func TableNotFound(op, table string) error {
	return &TableError{Op: op, Table: table, Kind: KindTableNotFound, Err: ErrTableNotFound}
}

// IsTableNotFound reports whether err is (or wraps) a table-absent failure.
func IsTableNotFound(err error) bool { return errors.Is(err, ErrTableNotFound) }

// IsConnection reports whether err is (or wraps) a connectivity failure.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// ClassifyTransport recognises driver-independent connectivity failures.
func ClassifyTransport(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return KindConnection
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindConnection
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return KindConnection
	}
	return KindUnknown
}
