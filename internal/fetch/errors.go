package fetch

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidPolicy is returned when a fetch policy cannot be built or does
	// not fit the result set it is bound to.
	ErrInvalidPolicy = errors.New("invalid fetch policy")
	// ErrConversion marks failures to describe or materialize a column in
	// Arrow.
	ErrConversion = errors.New("conversion error")
	// ErrUnsupportedColumnType is returned for columns without an Arrow
	// mapping. It is also marked ErrConversion.
	ErrUnsupportedColumnType = errors.New("unsupported column type")
	// ErrValueTooLarge is returned if a value does not fit the element buffer
	// of its column. Values are never truncated. It is also marked
	// ErrConversion.
	ErrValueTooLarge = errors.New("value too large for fetch buffer")
	// ErrAllocation is returned if fetch buffers could not be allocated and the
	// policy declares allocations fallible.
	ErrAllocation = errors.New("fetch buffer allocation failed")
)

func conversionErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConversion)
}
