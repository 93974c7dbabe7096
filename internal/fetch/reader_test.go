package fetch

import (
	"context"
	sqldriver "database/sql/driver"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/drivertest"
)

const selectIDName = "SELECT id, name FROM t"

func idNameSet() drivertest.ResultSet {
	return drivertest.ResultSet{
		Columns: []drivertest.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "name", Type: "VARCHAR", Length: 20, Nullable: true},
		},
		Rows: [][]sqldriver.Value{
			{int64(1), "one"},
			{int64(2), "two"},
			{int64(3), "three"},
			{int64(4), "four"},
			{int64(5), nil},
		},
	}
}

func openCursor(t *testing.T, f *drivertest.Fixture, query string) driver.Cursor {
	t.Helper()
	s := f.Session(t)
	cursor, err := s.Execute(context.Background(), query, nil, 0)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	return cursor
}

func build(t *testing.T, b *Builder, dbms string) *Policy {
	t.Helper()
	p, err := b.Build(dbms)
	require.NoError(t, err)
	return p
}

func TestSequentialReaderBatches(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())

	r, err := NewSequentialReader(openCursor(t, f, selectIDName), build(t, NewBuilder().WithMaxRowsPerBatch(2), "Fixture"), mem)
	require.NoError(t, err)
	assert.Equal(t, 2, r.BatchRows())

	var sizes []int64
	var ids []int32
	var names []string
	for {
		rec, err := r.NextBatch()
		require.NoError(t, err)
		if rec == nil {
			break
		}
		sizes = append(sizes, rec.NumRows())
		idCol := rec.Column(0).(*array.Int32)
		nameCol := rec.Column(1).(*array.String)
		for i := 0; i < int(rec.NumRows()); i++ {
			ids = append(ids, idCol.Value(i))
			if nameCol.IsNull(i) {
				names = append(names, "<null>")
			} else {
				names = append(names, nameCol.Value(i))
			}
		}
		rec.Release()
	}
	assert.Equal(t, []int64{2, 2, 1}, sizes)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, ids)
	assert.Equal(t, []string{"one", "two", "three", "four", "<null>"}, names)

	rec, err := r.NextBatch()
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, r.Close())
	assert.Zero(t, f.OpenCursors())
	assert.Zero(t, f.OpenConnections())
}

func TestSequentialReaderByteCap(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())

	// id: 4+8, name: 20*4+8 => 100 bytes per row.
	p := build(t, NewBuilder().WithMaxBytesPerBatch(250).WithTextEncoding(EncodingNarrow), "")
	r, err := NewSequentialReader(openCursor(t, f, selectIDName), p, nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.BatchRows())
}

func TestSequentialReaderRowLargerThanByteCap(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())

	p := build(t, NewBuilder().WithMaxBytesPerBatch(16), "")
	_, err := NewSequentialReader(openCursor(t, f, selectIDName), p, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
	assert.Zero(t, f.OpenCursors())
}

func TestSequentialReaderValueTooLarge(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("SELECT code FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "code", Type: "VARCHAR", Length: 1}},
		Rows:    [][]sqldriver.Value{{"this does not fit"}},
	})

	p := build(t, NewBuilder().WithTextEncoding(EncodingNarrow), "")
	r, err := NewSequentialReader(openCursor(t, f, "SELECT code FROM t"), p, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextBatch()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValueTooLarge))
	assert.True(t, errors.Is(err, ErrConversion))
	assert.Contains(t, err.Error(), `"code"`)
}

func TestSequentialReaderMaxTextSizeCapsUnknownLength(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("SELECT doc FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "doc", Type: "TEXT"}},
		Rows:    [][]sqldriver.Value{{"abcdefghijkl"}},
	})

	// 2 characters of at most 4 bytes each.
	p := build(t, NewBuilder().WithMaxTextSize(2).WithTextEncoding(EncodingNarrow), "")
	r, err := NewSequentialReader(openCursor(t, f, "SELECT doc FROM t"), p, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextBatch()
	assert.True(t, errors.Is(err, ErrValueTooLarge))
}

func TestSequentialReaderNulTerminatedText(t *testing.T) {
	f := drivertest.New("DB2/LINUX")
	f.On("SELECT s FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "s", Type: "VARCHAR", Length: 10, Nullable: true}},
		Rows:    [][]sqldriver.Value{{"abc\x00xyz"}, {""}, {"plain"}},
	})

	p := build(t, NewBuilder(), "DB2/LINUX")
	r, err := NewSequentialReader(openCursor(t, f, "SELECT s FROM t"), p, nil)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.NextBatch()
	require.NoError(t, err)
	defer rec.Release()
	col := rec.Column(0).(*array.String)
	assert.Equal(t, "abc", col.Value(0))
	assert.True(t, col.IsNull(1))
	assert.Equal(t, "plain", col.Value(2))
}

func TestSequentialReaderTextualTemporals(t *testing.T) {
	set := drivertest.ResultSet{
		Columns: []drivertest.Column{
			{Name: "d", Type: "DATE"},
			{Name: "ts", Type: "DATETIME"},
		},
		Rows: [][]sqldriver.Value{{[]byte("2024-03-01"), []byte("2024-03-01 12:30:45.5")}},
	}

	f := drivertest.New("MySQL")
	f.On("SELECT d, ts FROM t", set)

	r, err := NewSequentialReader(openCursor(t, f, "SELECT d, ts FROM t"), build(t, NewBuilder(), "MySQL"), nil)
	require.NoError(t, err)
	rec, err := r.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", rec.Column(0).(*array.Date32).Value(0).ToTime().Format("2006-01-02"))
	ts := rec.Column(1).(*array.Timestamp).Value(0)
	assert.Equal(t, "2024-03-01T12:30:45.5Z", ts.ToTime(arrow.Microsecond).Format("2006-01-02T15:04:05.999999999Z07:00"))
	rec.Release()
	require.NoError(t, r.Close())

	// Without the workaround text in a temporal column is a conversion error.
	r, err = NewSequentialReader(openCursor(t, f, "SELECT d, ts FROM t"), build(t, NewBuilder(), "PostgreSQL"), nil)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.NextBatch()
	assert.True(t, errors.Is(err, ErrConversion))
}

func TestSequentialReaderWideTextKeepsDriverUTF8(t *testing.T) {
	f := drivertest.New("MySQL")
	f.On("SELECT s FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "s", Type: "VARCHAR", Length: 5}},
		// 15 UTF-8 bytes but 5 UTF-16 code units, fits a wide buffer of 5.
		Rows: [][]sqldriver.Value{{[]byte("hello")}, {[]byte("日本語日本")}, {"héllo"}},
	})

	p := build(t, NewBuilder().WithTextEncoding(EncodingWide), "MySQL")
	r, err := NewSequentialReader(openCursor(t, f, "SELECT s FROM t"), p, nil)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.NextBatch()
	require.NoError(t, err)
	defer rec.Release()
	col := rec.Column(0).(*array.String)
	assert.Equal(t, "hello", col.Value(0))
	assert.Equal(t, "日本語日本", col.Value(1))
	assert.Equal(t, "héllo", col.Value(2))
}

func TestSequentialReaderWideTextTooLarge(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("SELECT s FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "s", Type: "VARCHAR", Length: 2}},
		Rows:    [][]sqldriver.Value{{[]byte("abc")}},
	})

	r, err := NewSequentialReader(openCursor(t, f, "SELECT s FROM t"), build(t, NewBuilder().WithTextEncoding(EncodingWide), ""), nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextBatch()
	assert.True(t, errors.Is(err, ErrValueTooLarge))
}

func TestSequentialReaderReplacesInvalidUTF8(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("SELECT s FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "s", Type: "VARCHAR", Length: 10}},
		Rows:    [][]sqldriver.Value{{[]byte{'a', 0xff, 'b'}}},
	})

	r, err := NewSequentialReader(openCursor(t, f, "SELECT s FROM t"), build(t, NewBuilder().WithTextEncoding(EncodingNarrow), ""), nil)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.NextBatch()
	require.NoError(t, err)
	defer rec.Release()
	assert.Equal(t, "a\uFFFDb", rec.Column(0).(*array.String).Value(0))
}

func TestSequentialReaderMySQLTimeAsText(t *testing.T) {
	f := drivertest.New("MySQL")
	f.On("SELECT t FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "t", Type: "TIME", Length: 10}},
		Rows:    [][]sqldriver.Value{{[]byte("-01:00:00")}, {[]byte("838:59:59")}, {[]byte("12:30:00")}},
	})

	r, err := NewSequentialReader(openCursor(t, f, "SELECT t FROM t"), build(t, NewBuilder(), "MySQL"), nil)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.NextBatch()
	require.NoError(t, err)
	defer rec.Release()
	col := rec.Column(0).(*array.String)
	assert.Equal(t, "-01:00:00", col.Value(0))
	assert.Equal(t, "838:59:59", col.Value(1))
	assert.Equal(t, "12:30:00", col.Value(2))

	// Other data sources keep TIME as a time of day.
	r, err = NewSequentialReader(openCursor(t, f, "SELECT t FROM t"), build(t, NewBuilder(), "PostgreSQL"), nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, arrow.TIME64, r.Schema().Field(0).Type.ID())
}

func TestSequentialReaderDecimal(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("SELECT price FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "price", Type: "NUMERIC", Precision: 10, Scale: 2}},
		Rows:    [][]sqldriver.Value{{[]byte("123.45")}, {float64(-1.5)}},
	})

	r, err := NewSequentialReader(openCursor(t, f, "SELECT price FROM t"), build(t, NewBuilder(), ""), nil)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.NextBatch()
	require.NoError(t, err)
	defer rec.Release()
	col := rec.Column(0).(*array.Decimal128)
	assert.Equal(t, decimal128.FromI64(12345), col.Value(0))
	assert.Equal(t, decimal128.FromI64(-150), col.Value(1))
}

func TestSequentialReaderSchemaOverride(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())

	override := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	r, err := NewSequentialReader(openCursor(t, f, selectIDName), build(t, NewBuilder().WithSchema(override), ""), nil)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, r.Schema().Equal(override))

	rec, err := r.NextBatch()
	require.NoError(t, err)
	defer rec.Release()
	assert.Equal(t, "1", rec.Column(0).(*array.String).Value(0))

	short := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	_, err = NewSequentialReader(openCursor(t, f, selectIDName), build(t, NewBuilder().WithSchema(short), ""), nil)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestSequentialReaderUnsupportedColumn(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("SELECT shape FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "shape", Type: "GEOMETRY"}},
	})

	_, err := NewSequentialReader(openCursor(t, f, "SELECT shape FROM t"), build(t, NewBuilder(), ""), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedColumnType))
	assert.Zero(t, f.OpenCursors())
	assert.Zero(t, f.OpenConnections())
}

func TestSequentialReaderFallibleAllocation(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())

	mem := NewLimitedAllocator(memory.NewGoAllocator(), 16)
	p := build(t, NewBuilder().WithMaxRowsPerBatch(1000).WithFallibleAllocations(true), "")
	_, err := NewSequentialReader(openCursor(t, f, selectIDName), p, mem)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.Zero(t, f.OpenCursors())
}

func TestSequentialReaderInfallibleAllocationPanics(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())
	cursor := openCursor(t, f, selectIDName)
	defer cursor.Close()

	mem := NewLimitedAllocator(memory.NewGoAllocator(), 16)
	p := build(t, NewBuilder().WithMaxRowsPerBatch(1000), "")
	assert.Panics(t, func() {
		_, _ = NewSequentialReader(cursor, p, mem)
	})
}

func TestSequentialReaderIntoCursor(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet(), idNameSet())

	r, err := NewSequentialReader(openCursor(t, f, selectIDName), build(t, NewBuilder(), ""), nil)
	require.NoError(t, err)

	cursor := r.IntoCursor()
	more, err := cursor.NextResultSet()
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, int64(1), f.OpenCursors())
	require.NoError(t, cursor.Close())
	assert.Zero(t, f.OpenCursors())
}

func readAll(t *testing.T, next func() (arrow.Record, error)) []arrow.Record {
	t.Helper()
	var recs []arrow.Record
	for {
		rec, err := next()
		require.NoError(t, err)
		if rec == nil {
			return recs
		}
		recs = append(recs, rec)
	}
}

func TestConcurrentReaderMatchesSequential(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())

	seq, err := NewSequentialReader(openCursor(t, f, selectIDName), build(t, NewBuilder().WithMaxRowsPerBatch(2), ""), mem)
	require.NoError(t, err)
	expected := readAll(t, seq.NextBatch)
	require.NoError(t, seq.Close())

	inner, err := NewSequentialReader(openCursor(t, f, selectIDName), build(t, NewBuilder().WithMaxRowsPerBatch(2), ""), mem)
	require.NoError(t, err)
	conc := NewConcurrentReader(inner)
	assert.True(t, conc.Schema().Equal(inner.Schema()))
	actual := readAll(t, conc.NextBatch)
	require.NoError(t, conc.Close())

	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.True(t, array.RecordEqual(expected[i], actual[i]), "batch %d differs", i)
		expected[i].Release()
		actual[i].Release()
	}
	assert.Zero(t, f.OpenCursors())
	assert.Zero(t, f.OpenConnections())
}

func TestConcurrentReaderCloseDiscardsPrefetched(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	f := drivertest.New("Fixture")
	f.On(selectIDName, idNameSet())

	inner, err := NewSequentialReader(openCursor(t, f, selectIDName), build(t, NewBuilder().WithMaxRowsPerBatch(1), ""), mem)
	require.NoError(t, err)
	conc := NewConcurrentReader(inner)

	rec, err := conc.NextBatch()
	require.NoError(t, err)
	require.NotNil(t, rec)
	rec.Release()

	require.NoError(t, conc.Close())
	assert.Zero(t, f.OpenCursors())
}

func TestConcurrentReaderRepeatsError(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("SELECT n FROM t", drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "n", Type: "SMALLINT"}},
		Rows:    [][]sqldriver.Value{{int64(1)}, {int64(1 << 20)}},
	})

	inner, err := NewSequentialReader(openCursor(t, f, "SELECT n FROM t"), build(t, NewBuilder().WithMaxRowsPerBatch(1), ""), nil)
	require.NoError(t, err)
	conc := NewConcurrentReader(inner)
	defer conc.Close()

	rec, err := conc.NextBatch()
	require.NoError(t, err)
	rec.Release()

	_, err = conc.NextBatch()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConversion))

	_, again := conc.NextBatch()
	assert.Equal(t, err, again)
}
