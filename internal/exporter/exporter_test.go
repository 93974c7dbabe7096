package exporter

import (
	"bytes"
	"context"
	sqldriver "database/sql/driver"
	"encoding/json"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sql-arrow-bridge/internal/drivertest"
	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/lifecycle"
)

func sampleRecord(t *testing.T) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "note", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"=SUM(A1)", ""}, []bool{true, false})
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func encode(t *testing.T, format string, rec arrow.Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := NewEncoder(format, &buf)
	require.NoError(t, err)
	require.NoError(t, enc.WriteSchema(rec.Schema()))
	require.NoError(t, enc.WriteBatch(rec))
	require.NoError(t, enc.Flush())
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func TestCSVEncoder(t *testing.T) {
	out := encode(t, "csv", sampleRecord(t))
	assert.Equal(t, "id,note\n1,'=SUM(A1)\n2,NULL\n", string(out))
}

func TestJSONEncoder(t *testing.T) {
	out := encode(t, "json", sampleRecord(t))
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, float64(1), first["id"])
	assert.Equal(t, "=SUM(A1)", first["note"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Nil(t, second["note"])

	// Keys follow the schema.
	assert.Equal(t, `{"id":2,"note":null}`, lines[1])
}

func TestExcelEncoder(t *testing.T) {
	out := encode(t, "xlsx", sampleRecord(t))

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "note"}, {"1", "'=SUM(A1)"}, {"2", "NULL"}}, rows)
}

func TestPDFEncoder(t *testing.T) {
	out := encode(t, "pdf", sampleRecord(t))
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	// Closing after flushing must not append a second document.
	assert.Equal(t, 1, bytes.Count(out, []byte("%%EOF")))
}

func TestIPCEncoderRoundTrip(t *testing.T) {
	rec := sampleRecord(t)
	out := encode(t, "arrow", rec)

	r, err := ipc.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer r.Release()
	require.True(t, r.Next())
	assert.True(t, array.RecordEqual(rec, r.Record()))
	assert.False(t, r.Next())
}

func TestUnknownFormat(t *testing.T) {
	_, err := NewEncoder("docx", &bytes.Buffer{})
	assert.Error(t, err)
	assert.False(t, Supported("docx"))
	assert.True(t, Supported("XLSX"))
	assert.Equal(t, "jsonl", Extension("json"))
	assert.Equal(t, "arrow", Extension("ipc"))
}

func TestStreamResultSet(t *testing.T) {
	f := drivertest.New("Fixture")
	set := drivertest.ResultSet{
		Columns: []drivertest.Column{{Name: "id", Type: "BIGINT"}},
	}
	for i := 1; i <= 5; i++ {
		set.Rows = append(set.Rows, []sqldriver.Value{int64(i)})
	}
	f.On("SELECT id FROM t", set)

	for _, concurrent := range []bool{false, true} {
		r := lifecycle.New()
		require.NoError(t, r.SetConnection(f.Session(t)))
		require.NoError(t, r.PromoteToCursor(context.Background(), "SELECT id FROM t", nil, 0))

		var buf bytes.Buffer
		res, err := NewStreamer(concurrent).StreamResultSet(context.Background(), r,
			fetch.NewBuilder().WithMaxRowsPerBatch(2), NewCSVEncoder(&buf))
		require.NoError(t, err)
		assert.Equal(t, int64(5), res.RowsProcessed)
		assert.Equal(t, 3, res.Batches)
		assert.Equal(t, "id\n1\n2\n3\n4\n5\n", buf.String())

		require.NoError(t, r.Close())
	}
	assert.Zero(t, f.OpenConnections())
}

func TestStreamWithoutResultSet(t *testing.T) {
	f := drivertest.New("Fixture")
	f.On("UPDATE t SET id = 1")

	r := lifecycle.New()
	require.NoError(t, r.SetConnection(f.Session(t)))
	require.NoError(t, r.PromoteToCursor(context.Background(), "UPDATE t SET id = 1", nil, 0))

	var buf bytes.Buffer
	res, err := NewStreamer(false).StreamResultSet(context.Background(), r, fetch.NewBuilder(), NewCSVEncoder(&buf))
	require.NoError(t, err)
	assert.Zero(t, res.RowsProcessed)
	assert.Equal(t, "\n", buf.String())
}
