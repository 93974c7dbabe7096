package exporter

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"sql-arrow-bridge/internal/columnar"
)

// CSVEncoder writes batches as CSV with a header row. NULL is written as the
// literal NULL, text starting like a formula is quoted away.
type CSVEncoder struct {
	w      *csv.Writer
	buf    *bufio.Writer
	record []string
}

// NewCSVEncoder buffers 64KB in front of w.
func NewCSVEncoder(w io.Writer) *CSVEncoder {
	buf := bufio.NewWriterSize(w, 64*1024)
	return &CSVEncoder{
		w:   csv.NewWriter(buf),
		buf: buf,
	}
}

func (e *CSVEncoder) WriteSchema(schema *arrow.Schema) error {
	header := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		header[i] = f.Name
	}
	e.record = make([]string, len(header))
	return e.w.Write(header)
}

func (e *CSVEncoder) WriteBatch(rec arrow.Record) error {
	cells := make([]func(int) string, rec.NumCols())
	for j, col := range rec.Columns() {
		cells[j] = csvCells(col)
	}

	for i := 0; i < int(rec.NumRows()); i++ {
		for j, col := range rec.Columns() {
			if col.IsNull(i) {
				e.record[j] = "NULL"
				continue
			}
			e.record[j] = cells[j](i)
		}
		if err := e.w.Write(e.record); err != nil {
			return err
		}
	}
	return nil
}

// csvCells picks the text form of the non-null values of one column.
func csvCells(col arrow.Array) func(int) string {
	switch a := col.(type) {
	case *array.Int64:
		return func(i int) string { return strconv.FormatInt(a.Value(i), 10) }
	case *array.Int32:
		return func(i int) string { return strconv.FormatInt(int64(a.Value(i)), 10) }
	case *array.Float64:
		return func(i int) string { return strconv.FormatFloat(a.Value(i), 'f', -1, 64) }
	case *array.String:
		return func(i int) string { return escapeFormula(a.Value(i)) }
	case *array.Boolean:
		return func(i int) string {
			if a.Value(i) {
				return "1"
			}
			return "0"
		}
	default:
		return func(i int) string { return csvText(columnar.Value(col, i)) }
	}
}

func csvText(v any) string {
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999")
	case []byte:
		return escapeFormula(string(v))
	case string:
		return escapeFormula(v)
	default:
		return ""
	}
}

func (e *CSVEncoder) Flush() error {
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return err
	}
	return e.buf.Flush()
}

func (e *CSVEncoder) Error() error {
	return e.w.Error()
}

func (e *CSVEncoder) Close() error {
	return e.Flush()
}

// escapeFormula prefixes text starting with =, +, - or @ with a single quote
// so spreadsheets do not evaluate it.
func escapeFormula(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}
