// Package boundary is the surface handed to callers that cannot deal with Go
// errors or Go memory: every operation reports failure as an *Error and moves
// data through Arrow C Data Interface structs.
package boundary

import (
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/columnar"
	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/writer"
)

// ErrInvalidArgument marks arguments rejected at the boundary, such as text
// that is not valid UTF-8.
var ErrInvalidArgument = errors.New("invalid argument")

// Kind tells callers which family an error belongs to. The values are part of
// the C surface.
type Kind int

const (
	KindUnknown Kind = iota
	KindDriver
	KindConversion
	KindAllocation
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindDriver:
		return "driver"
	case KindConversion:
		return "conversion"
	case KindAllocation:
		return "allocation"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error is the only error representation that leaves the boundary. Once
// handed out it belongs to the caller.
type Error struct {
	message string
	kind    Kind
}

// NewError converts err. It returns nil for a nil err.
func NewError(err error) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}
	kind := Classify(err)
	slog.Debug("Operation failed", "kind", kind.String(), "error", msg)
	return &Error{message: msg, kind: kind}
}

// Message never contains a NUL byte.
func (e *Error) Message() string {
	return e.message
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Error() string {
	return e.message
}

// Classify maps err to its kind. Allocation failures win over conversion
// failures, which win over driver failures.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, fetch.ErrAllocation):
		return KindAllocation
	case errors.Is(err, fetch.ErrConversion), errors.Is(err, columnar.ErrExport):
		return KindConversion
	case errors.Is(err, driver.ErrDriver):
		return KindDriver
	case errors.Is(err, fetch.ErrInvalidPolicy),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, writer.ErrInvalidArgument),
		errors.HasAssertionFailure(err):
		return KindInvalidArgument
	default:
		return KindUnknown
	}
}

// Guard runs fn and converts its error. It is the single place internal
// errors turn into *Error.
func Guard(fn func() error) *Error {
	return NewError(fn())
}
