package fetch

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectsZeroRows(t *testing.T) {
	_, err := NewBuilder().WithMaxRowsPerBatch(0).Build("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestBuildRejectsNegativeCaps(t *testing.T) {
	_, err := NewBuilder().WithMaxTextSize(-1).Build("")
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestBuilderIsConsumedOnce(t *testing.T) {
	b := NewBuilder()
	_, err := b.Build("")
	require.NoError(t, err)

	_, err = b.Build("")
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestBuildNormalizesUnboundedBytes(t *testing.T) {
	p, err := NewBuilder().WithMaxBytesPerBatch(0).WithMaxRowsPerBatch(10).Build("")
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, p.MaxBytesPerBatch())
	assert.Equal(t, 10, p.MaxRowsPerBatch())
}

func TestBuildResolvesAutoEncoding(t *testing.T) {
	p, err := NewBuilder().Build("")
	require.NoError(t, err)
	assert.NotEqual(t, EncodingAuto, p.TextEncoding())

	p, err = NewBuilder().WithTextEncoding(EncodingWide).Build("")
	require.NoError(t, err)
	assert.Equal(t, EncodingWide, p.TextEncoding())
}

func TestQuirksByExactName(t *testing.T) {
	for _, name := range []string{"DB2/LINUX", "DB2/6000", "DB2/NT", "DB2/NT64"} {
		assert.True(t, QuirksFor(name).NulTerminatedText, name)
	}
	assert.True(t, QuirksFor("MySQL").TextualTemporals)
	assert.Equal(t, Quirks{}, QuirksFor("db2/linux"))
	assert.Equal(t, Quirks{}, QuirksFor("PostgreSQL"))

	p, err := NewBuilder().Build("DB2/NT64")
	require.NoError(t, err)
	assert.Equal(t, "DB2/NT64", p.DBMSName())
	assert.True(t, p.Quirks().NulTerminatedText)
}

func TestBufferRows(t *testing.T) {
	p, err := NewBuilder().WithMaxRowsPerBatch(100).WithMaxBytesPerBatch(100).Build("")
	require.NoError(t, err)

	// Two 8 byte columns plus an 8 byte indicator each: 32 bytes per row.
	rows, err := p.bufferRows([]int{8, 8})
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	p, err = NewBuilder().WithMaxRowsPerBatch(2).WithMaxBytesPerBatch(100).Build("")
	require.NoError(t, err)
	rows, err = p.bufferRows([]int{8, 8})
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	p, err = NewBuilder().WithMaxBytesPerBatch(10).Build("")
	require.NoError(t, err)
	_, err = p.bufferRows([]int{8, 8})
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestElementSize(t *testing.T) {
	p, err := NewBuilder().WithTextEncoding(EncodingNarrow).Build("")
	require.NoError(t, err)

	text := arrow.Field{Name: "t", Type: arrow.BinaryTypes.String}
	assert.Equal(t, 20*4, p.elementSize(text, 20))
	assert.Equal(t, DefaultTextSize*4, p.elementSize(text, 0))
	assert.Equal(t, 8, p.elementSize(arrow.Field{Type: arrow.PrimitiveTypes.Int64}, 0))
	assert.Equal(t, 16, p.elementSize(arrow.Field{Type: &arrow.Decimal128Type{Precision: 10, Scale: 2}}, 0))
	assert.Equal(t, 1, p.elementSize(arrow.Field{Type: arrow.FixedWidthTypes.Boolean}, 0))

	p, err = NewBuilder().WithTextEncoding(EncodingWide).WithMaxTextSize(10).WithMaxBinarySize(7).Build("")
	require.NoError(t, err)
	assert.Equal(t, 10*2, p.elementSize(text, 0))
	assert.Equal(t, 5*2, p.elementSize(text, 5))
	assert.Equal(t, 10*2, p.elementSize(text, 5000))
	assert.Equal(t, 7, p.elementSize(arrow.Field{Type: arrow.BinaryTypes.Binary}, 0))
}

func TestTextEncodingParsing(t *testing.T) {
	e, err := ParseTextEncoding("UTF16")
	require.NoError(t, err)
	assert.Equal(t, EncodingWide, e)

	e, err = TextEncodingFromByte(1)
	require.NoError(t, err)
	assert.Equal(t, EncodingNarrow, e)

	_, err = TextEncodingFromByte(3)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))

	_, err = ParseTextEncoding("latin1")
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}
