package exporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"sql-arrow-bridge/internal/columnar"
)

// RowEncoder is implemented by the row oriented formats (Excel, PDF) and
// adapted to batches by Rows.
type RowEncoder interface {
	// WriteHeader writes the initial column headers to the output.
	// This should be called exactly once before any rows are written.
	WriteHeader(columns []string) error

	// WriteRow writes a single row of data.
	// The values slice length must match the headers length.
	WriteRow(values []any) error

	// Flush ensures all buffered data is written to the underlying writer.
	Flush() error

	// Error returns the first error that occurred during encoding, if any.
	Error() error

	io.Closer
}

// BatchEncoder writes whole Arrow record batches. It is what the streamer
// talks to.
type BatchEncoder interface {
	// WriteSchema must be called exactly once before the first batch.
	WriteSchema(schema *arrow.Schema) error
	// WriteBatch writes rec. The caller keeps its reference.
	WriteBatch(rec arrow.Record) error
	Flush() error
	Error() error
	io.Closer
}

// Formats lists the names accepted by NewEncoder.
var Formats = []string{"csv", "json", "xlsx", "pdf", "arrow"}

// NewEncoder returns the encoder for format writing to w.
func NewEncoder(format string, w io.Writer) (BatchEncoder, error) {
	switch strings.ToLower(format) {
	case "csv":
		return NewCSVEncoder(w), nil
	case "json", "jsonl":
		return NewJSONEncoder(w), nil
	case "xlsx", "excel":
		return Rows(NewExcelEncoder(w)), nil
	case "pdf":
		return Rows(NewPDFEncoder(w)), nil
	case "arrow", "ipc":
		return NewIPCEncoder(w), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Supported reports whether NewEncoder accepts format.
func Supported(format string) bool {
	switch strings.ToLower(format) {
	case "csv", "json", "jsonl", "xlsx", "excel", "pdf", "arrow", "ipc":
		return true
	default:
		return false
	}
}

// Extension is the file extension for format, without a dot.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case "json", "jsonl":
		return "jsonl"
	case "excel":
		return "xlsx"
	case "ipc":
		return "arrow"
	default:
		return strings.ToLower(format)
	}
}

// rowBatches feeds the rows of each batch to a RowEncoder.
type rowBatches struct {
	RowEncoder
	values []any
}

// Rows adapts a RowEncoder to whole batches.
func Rows(enc RowEncoder) BatchEncoder {
	return &rowBatches{RowEncoder: enc}
}

func (e *rowBatches) WriteSchema(schema *arrow.Schema) error {
	columns := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		columns[i] = f.Name
	}
	e.values = make([]any, len(columns))
	return e.WriteHeader(columns)
}

func (e *rowBatches) WriteBatch(rec arrow.Record) error {
	cols := rec.Columns()
	for i := 0; i < int(rec.NumRows()); i++ {
		for j, col := range cols {
			e.values[j] = columnar.Value(col, i)
		}
		if err := e.WriteRow(e.values); err != nil {
			return err
		}
	}
	return nil
}
