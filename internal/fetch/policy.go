package fetch

import (
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"
)

const (
	// DefaultMaxRowsPerBatch is used if the builder is not given a row cap.
	DefaultMaxRowsPerBatch = 65535
	// DefaultMaxBytesPerBatch is used if the builder is not given a byte cap.
	DefaultMaxBytesPerBatch = 512 << 20
	// DefaultTextSize is the element size, in characters or bytes, for text
	// and binary columns whose length is unknown and not capped.
	DefaultTextSize = 4096

	indicatorSize = 8
)

// Builder collects fetch options. It is consumed by Build exactly once.
type Builder struct {
	maxRows   int
	maxBytes  int
	maxText   int
	maxBinary int
	fallible  bool
	encoding  TextEncoding
	schema    *arrow.Schema
	consumed  bool
}

// NewBuilder starts a builder with the default caps.
func NewBuilder() *Builder {
	return &Builder{
		maxRows:  DefaultMaxRowsPerBatch,
		maxBytes: DefaultMaxBytesPerBatch,
	}
}

// WithMaxRowsPerBatch caps the rows of one batch. It must be positive.
func (b *Builder) WithMaxRowsPerBatch(n int) *Builder {
	b.maxRows = n
	return b
}

// WithMaxBytesPerBatch caps the buffer memory of one batch. 0 means unbounded.
func (b *Builder) WithMaxBytesPerBatch(n int) *Builder {
	b.maxBytes = n
	return b
}

// WithMaxTextSize caps the element size of text columns, in characters.
// 0 means no cap.
func (b *Builder) WithMaxTextSize(n int) *Builder {
	b.maxText = n
	return b
}

// WithMaxBinarySize caps the element size of binary columns, in bytes.
// 0 means no cap.
func (b *Builder) WithMaxBinarySize(n int) *Builder {
	b.maxBinary = n
	return b
}

// WithFallibleAllocations reports allocation failures as ErrAllocation
// instead of letting them bring down the process.
func (b *Builder) WithFallibleAllocations(fallible bool) *Builder {
	b.fallible = fallible
	return b
}

func (b *Builder) WithTextEncoding(e TextEncoding) *Builder {
	b.encoding = e
	return b
}

// WithSchema overrides the schema derived from the result set metadata.
func (b *Builder) WithSchema(s *arrow.Schema) *Builder {
	b.schema = s
	return b
}

// Build validates the options and attaches the workarounds known for
// dbmsName.
func (b *Builder) Build(dbmsName string) (*Policy, error) {
	if b.consumed {
		return nil, errors.AssertionFailedf("fetch policy builder used twice")
	}
	b.consumed = true

	if b.maxRows <= 0 {
		return nil, errors.Mark(errors.Newf("max rows per batch must be positive, got %d", b.maxRows), ErrInvalidPolicy)
	}
	if b.maxBytes < 0 || b.maxText < 0 || b.maxBinary < 0 {
		return nil, errors.Mark(errors.New("size caps must not be negative"), ErrInvalidPolicy)
	}
	if b.encoding > EncodingWide {
		return nil, errors.Mark(errors.Newf("unknown text encoding %d", b.encoding), ErrInvalidPolicy)
	}

	maxBytes := b.maxBytes
	if maxBytes == 0 {
		maxBytes = math.MaxInt
	}
	return &Policy{
		maxRows:   b.maxRows,
		maxBytes:  maxBytes,
		maxText:   b.maxText,
		maxBinary: b.maxBinary,
		fallible:  b.fallible,
		encoding:  b.encoding.Resolve(),
		schema:    b.schema,
		dbmsName:  dbmsName,
		quirks:    QuirksFor(dbmsName),
	}, nil
}

// Policy is the validated, immutable result of a Builder.
type Policy struct {
	maxRows   int
	maxBytes  int
	maxText   int
	maxBinary int
	fallible  bool
	encoding  TextEncoding
	schema    *arrow.Schema
	dbmsName  string
	quirks    Quirks
}

func (p *Policy) MaxRowsPerBatch() int { return p.maxRows }
func (p *Policy) MaxBytesPerBatch() int { return p.maxBytes }
func (p *Policy) MaxTextSize() int { return p.maxText }
func (p *Policy) MaxBinarySize() int { return p.maxBinary }
func (p *Policy) FallibleAllocations() bool { return p.fallible }
func (p *Policy) TextEncoding() TextEncoding { return p.encoding }
func (p *Policy) Schema() *arrow.Schema { return p.schema }
func (p *Policy) DBMSName() string { return p.dbmsName }
func (p *Policy) Quirks() Quirks { return p.quirks }

// elementSize is the number of buffer bytes one value of the field takes.
func (p *Policy) elementSize(f arrow.Field, reportedLength int64) int {
	switch f.Type.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		chars := int(reportedLength)
		if p.maxText > 0 && (chars <= 0 || chars > p.maxText) {
			chars = p.maxText
		}
		if chars <= 0 {
			chars = DefaultTextSize
		}
		return chars * p.encoding.bytesPerChar()
	case arrow.BINARY, arrow.LARGE_BINARY:
		n := int(reportedLength)
		if p.maxBinary > 0 && (n <= 0 || n > p.maxBinary) {
			n = p.maxBinary
		}
		if n <= 0 {
			n = DefaultTextSize
		}
		return n
	case arrow.BOOL:
		return 1
	default:
		if fw, ok := f.Type.(arrow.FixedWidthDataType); ok {
			if n := fw.BitWidth() / 8; n > 0 {
				return n
			}
		}
		return 8
	}
}

// bufferRows computes the rows per batch for the given element sizes:
// min(row cap, byte cap / row size).
func (p *Policy) bufferRows(elementSizes []int) (int, error) {
	rowSize := 0
	for _, n := range elementSizes {
		rowSize += n + indicatorSize
	}
	if rowSize == 0 {
		return p.maxRows, nil
	}
	rows := p.maxBytes / rowSize
	if rows == 0 {
		return 0, errors.Mark(
			errors.Newf("a single row needs %d bytes of buffer, more than the %d bytes allowed per batch", rowSize, p.maxBytes),
			ErrInvalidPolicy)
	}
	return min(rows, p.maxRows), nil
}
