package driver

import (
	"database/sql"
	sqldriver "database/sql/driver"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDriver marks every failure reported by the connectivity layer.
	ErrDriver = errors.New("driver error")
	// ErrUnsupported is returned for operations a session kind cannot perform.
	ErrUnsupported = errors.New("operation not supported by driver")
)

// markDriver wraps err with msg and marks it as a driver error.
func markDriver(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrDriver)
}

// IsConnectionLost reports whether err means the session can no longer be
// used and must be discarded.
func IsConnectionLost(err error) bool {
	return errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}
