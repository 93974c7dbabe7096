package exporter

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/apache/arrow-go/v18/arrow"

	"sql-arrow-bridge/internal/columnar"
)

// JSONEncoder writes one JSON object per row (JSON Lines). Keys keep the
// column order of the schema, binary values are written as text.
type JSONEncoder struct {
	buf  *bufio.Writer
	keys [][]byte
	err  error
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{buf: bufio.NewWriterSize(w, 64*1024)}
}

func (e *JSONEncoder) WriteSchema(schema *arrow.Schema) error {
	e.keys = make([][]byte, schema.NumFields())
	for i, f := range schema.Fields() {
		key, err := json.Marshal(f.Name)
		if err != nil {
			return e.fail(err)
		}
		e.keys[i] = append(key, ':')
	}
	return nil
}

func (e *JSONEncoder) WriteBatch(rec arrow.Record) error {
	if e.err != nil {
		return e.err
	}
	for i := 0; i < int(rec.NumRows()); i++ {
		e.buf.WriteByte('{')
		for j, col := range rec.Columns() {
			if j > 0 {
				e.buf.WriteByte(',')
			}
			e.buf.Write(e.keys[j])

			v := columnar.Value(col, i)
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			data, err := json.Marshal(v)
			if err != nil {
				return e.fail(err)
			}
			e.buf.Write(data)
		}
		if _, err := e.buf.WriteString("}\n"); err != nil {
			return e.fail(err)
		}
	}
	return nil
}

func (e *JSONEncoder) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	return err
}

func (e *JSONEncoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	return e.fail(e.buf.Flush())
}

func (e *JSONEncoder) Error() error {
	return e.err
}

func (e *JSONEncoder) Close() error {
	return e.Flush()
}
