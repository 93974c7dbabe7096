package fetch

import (
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/driver"
)

// SequentialReader fetches the rows of a cursor in batches of at most the
// number of rows its buffers were sized for.
type SequentialReader struct {
	cursor  driver.Cursor
	policy  *Policy
	schema  *arrow.Schema
	columns []column
	rows    int
	mem     memory.Allocator
	builder *array.RecordBuilder
	values  []any
	dest    []any
	done    bool
}

// NewSequentialReader binds fetch buffers for the current result set of
// cursor. It takes ownership of the cursor: if binding fails the cursor is
// closed before the error is returned.
func NewSequentialReader(cursor driver.Cursor, policy *Policy, mem memory.Allocator) (*SequentialReader, error) {
	r, err := bind(cursor, policy, mem)
	if err != nil {
		return nil, errors.CombineErrors(err, cursor.Close())
	}
	return r, nil
}

func bind(cursor driver.Cursor, policy *Policy, mem memory.Allocator) (*SequentialReader, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	cols, err := cursor.Columns()
	if err != nil {
		return nil, err
	}

	schema := policy.Schema()
	if schema == nil {
		if schema, err = SchemaFor(cols, policy.Quirks()); err != nil {
			return nil, err
		}
	} else if schema.NumFields() != len(cols) {
		return nil, errors.Mark(
			errors.Newf("schema has %d fields but the result set has %d columns", schema.NumFields(), len(cols)),
			ErrInvalidPolicy)
	}

	columns := make([]column, len(cols))
	sizes := make([]int, len(cols))
	for i, f := range schema.Fields() {
		if !supported(f.Type) {
			return nil, errors.Mark(errors.Wrapf(ErrUnsupportedColumnType, "field %q of type %s", f.Name, f.Type), ErrConversion)
		}
		var length int64
		if cols[i].HasLength {
			length = cols[i].Length
		}
		sizes[i] = policy.elementSize(f, length)
		columns[i] = column{
			field:       f,
			elementSize: sizes[i],
			quirks:      policy.Quirks(),
			encoding:    policy.TextEncoding(),
		}
	}

	rows, err := policy.bufferRows(sizes)
	if err != nil {
		return nil, err
	}

	r := &SequentialReader{
		cursor:  cursor,
		policy:  policy,
		schema:  schema,
		columns: columns,
		rows:    rows,
		mem:     mem,
		builder: array.NewRecordBuilder(mem, schema),
		values:  make([]any, len(cols)),
		dest:    make([]any, len(cols)),
	}
	for i := range r.values {
		r.dest[i] = &r.values[i]
	}

	if err := r.allocate(r.reserve); err != nil {
		r.builder.Release()
		return nil, err
	}

	slog.Debug("Bound fetch buffers",
		"columns", len(cols), "rows", rows, "dbms", policy.DBMSName(), "fallible", policy.FallibleAllocations())
	return r, nil
}

// Schema is the schema of every batch this reader produces.
func (r *SequentialReader) Schema() *arrow.Schema {
	return r.schema
}

// BatchRows is the maximum number of rows of one batch.
func (r *SequentialReader) BatchRows() int {
	return r.rows
}

// NextBatch fetches the next batch. It returns nil and no error once the
// result set is exhausted. The caller owns the returned record and must
// release it.
func (r *SequentialReader) NextBatch() (arrow.Record, error) {
	if r.done {
		return nil, nil
	}

	var rec arrow.Record
	err := r.allocate(func() error {
		var err error
		rec, err = r.fill()
		return err
	})
	if err != nil {
		// Rows appended before the failure must not leak into the next batch.
		r.builder.Release()
		r.builder = array.NewRecordBuilder(r.mem, r.schema)
		return nil, err
	}
	return rec, nil
}

func (r *SequentialReader) fill() (arrow.Record, error) {
	r.reserve()

	n := 0
	for n < r.rows && r.cursor.Next() {
		clear(r.values)
		if err := r.cursor.Scan(r.dest...); err != nil {
			return nil, err
		}
		for i := range r.columns {
			if err := r.columns[i].append(r.builder.Field(i), r.values[i]); err != nil {
				return nil, err
			}
		}
		n++
	}
	if n < r.rows {
		if err := r.cursor.Err(); err != nil {
			return nil, err
		}
		r.done = true
	}
	if n == 0 {
		return nil, nil
	}
	return r.builder.NewRecord(), nil
}

func (r *SequentialReader) reserve() error {
	for i := range r.columns {
		r.builder.Field(i).Reserve(r.rows)
	}
	return nil
}

// allocate runs fn, turning allocation failures into ErrAllocation if the
// policy allows it.
func (r *SequentialReader) allocate(fn func() error) error {
	if !r.policy.FallibleAllocations() {
		return fn()
	}
	return recoverAllocation(fn)
}

// IntoCursor releases the fetch buffers and hands back the cursor. The
// reader must not be used afterwards.
func (r *SequentialReader) IntoCursor() driver.Cursor {
	cursor := r.cursor
	r.cursor = nil
	r.builder.Release()
	return cursor
}

// Close releases the fetch buffers and the cursor.
func (r *SequentialReader) Close() error {
	if r.cursor == nil {
		return nil
	}
	return r.IntoCursor().Close()
}
