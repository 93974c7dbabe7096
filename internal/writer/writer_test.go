package writer

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-arrow-bridge/internal/drivertest"
)

var usersSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int32},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func usersRecord(t *testing.T) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, usersSchema)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).AppendValues([]int32{1, 2, 3}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"ann", "", "cid"}, []bool{true, false, true})
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func TestWriterInsertsInChunks(t *testing.T) {
	fx := drivertest.New("Fixture")
	w, err := New(fx.Session(t), "users", usersSchema, 2)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.WriteBatch(ctx, usersRecord(t)))

	execs := fx.Execs()
	require.Len(t, execs, 1)
	assert.Equal(t, "INSERT INTO users (id, name) VALUES (?, ?), (?, ?)", execs[0].Query)
	assert.Equal(t, []any{int64(1), "ann", int64(2), nil}, execs[0].Args)

	require.NoError(t, w.Flush(ctx))
	execs = fx.Execs()
	require.Len(t, execs, 2)
	assert.Equal(t, "INSERT INTO users (id, name) VALUES (?, ?)", execs[1].Query)
	assert.Equal(t, []any{int64(3), "cid"}, execs[1].Args)

	// Nothing buffered, nothing to do.
	require.NoError(t, w.Flush(ctx))
	assert.Len(t, fx.Execs(), 2)

	require.NoError(t, w.Close())
	assert.Zero(t, fx.OpenConnections())
}

func TestWriterRejectsMismatchedBatch(t *testing.T) {
	fx := drivertest.New("Fixture")
	other := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	w, err := New(fx.Session(t), "users", other, 10)
	require.NoError(t, err)
	defer w.Close()

	err = w.WriteBatch(context.Background(), usersRecord(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Empty(t, fx.Execs())
}

func TestNewTakesSessionOnFailure(t *testing.T) {
	fx := drivertest.New("Fixture")

	_, err := New(fx.Session(t), "users", usersSchema, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Zero(t, fx.OpenConnections())

	_, err = New(fx.Session(t), " ", usersSchema, 1)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Zero(t, fx.OpenConnections())
}

func TestFlushReportsDriverError(t *testing.T) {
	fx := drivertest.New("Fixture")
	fx.Fail("INSERT INTO users (id, name) VALUES (?, ?), (?, ?), (?, ?)", errors.New("constraint violated"))
	w, err := New(fx.Session(t), "users", usersSchema, 10)
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.WriteBatch(ctx, usersRecord(t)))
	err = w.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violated")

	// The failed rows are not retried.
	require.NoError(t, w.Flush(ctx))
}
