package driver

import (
	"context"
	"reflect"
	"time"
)

// Session is an open connection to a data source. It is owned by exactly one
// holder at a time; handing it to a cursor moves ownership along with it.
type Session interface {
	// Name returns the driver name (e.g., "mysql", "postgres").
	Name() string

	// DBMSName returns the product name the data source reports about itself,
	// e.g. "MySQL" or "PostgreSQL". Workarounds are keyed by it.
	DBMSName(ctx context.Context) (string, error)

	// Execute runs the query with the bound parameters. A zero timeout means no
	// timeout. If the query produces no result set, Execute returns a nil
	// Cursor and a nil error and the session stays usable.
	//
	// On success the returned Cursor owns the session: closing the cursor
	// closes the session.
	Execute(ctx context.Context, query string, params []Param, timeout time.Duration) (Cursor, error)

	// Exec runs a statement that is not expected to produce rows.
	Exec(ctx context.Context, query string, args ...any) error

	// Placeholder returns the bind marker for the n-th (1 based) argument.
	Placeholder(n int) string

	// Close releases the session.
	Close() error
}

// Cursor is positioned on a result set whose rows have not been bound to
// fetch buffers yet.
// It is designed to be memory-efficient and stream-oriented.
type Cursor interface {
	// Columns describes the columns of the current result set.
	Columns() ([]Column, error)

	// Next advances to the next row. Returns false when there are no more rows or an error occurs.
	Next() bool

	// Scan copies the columns in the current row into the values pointed at by dest.
	Scan(dest ...any) error

	// Err returns the error, if any, that was encountered during iteration.
	Err() error

	// NextResultSet moves to the next result set. It reports false once the
	// last result set has been consumed; the cursor should be closed then.
	NextResultSet() (bool, error)

	// Close releases the cursor together with the session it owns.
	Close() error
}

// Column is the metadata of one result set column as reported by the driver.
type Column struct {
	Name string
	// DatabaseType is the upper case type name, e.g. "VARCHAR" or "INT8".
	DatabaseType string

	Length    int64
	HasLength bool

	Precision         int64
	Scale             int64
	HasPrecisionScale bool

	Nullable bool

	// ScanType is the Go type the driver scans values into. May be nil.
	ScanType reflect.Type
}
