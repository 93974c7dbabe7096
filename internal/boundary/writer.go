package boundary

import (
	"context"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/columnar"
	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/writer"
)

// Writer inserts batches moved in through the C Data Interface.
type Writer struct {
	w *writer.Writer
}

// NewWriter takes ownership of session and schema, also on failure.
func NewWriter(session driver.Session, table []byte, chunkSize int, schema *cdata.CArrowSchema) (*Writer, *Error) {
	var w *writer.Writer
	e := Guard(func() error {
		if !utf8.Valid(table) {
			err := errors.Mark(errors.New("table name is not valid UTF-8"), ErrInvalidArgument)
			return errors.CombineErrors(err, errors.CombineErrors(session.Close(), discardSchema(schema)))
		}
		if schema == nil || columnar.IsEmptySchema(schema) {
			err := errors.Mark(errors.New("writer needs a schema"), ErrInvalidArgument)
			return errors.CombineErrors(err, session.Close())
		}
		s, err := columnar.ImportSchema(schema)
		if err != nil {
			return errors.CombineErrors(err, session.Close())
		}
		w, err = writer.New(session, string(table), s, chunkSize)
		return err
	})
	if e != nil {
		return nil, e
	}
	return &Writer{w: w}, nil
}

// discardSchema releases a schema that is not going to be used.
func discardSchema(schema *cdata.CArrowSchema) error {
	if schema == nil || columnar.IsEmptySchema(schema) {
		return nil
	}
	_, err := columnar.ImportSchema(schema)
	return err
}

// WriteBatch takes ownership of the batch and leaves arr and schema empty.
func (w *Writer) WriteBatch(ctx context.Context, arr *cdata.CArrowArray, schema *cdata.CArrowSchema) *Error {
	return Guard(func() error {
		rec, err := columnar.ImportBatch(arr, schema)
		if err != nil {
			return err
		}
		defer rec.Release()
		return w.w.WriteBatch(ctx, rec)
	})
}

// Flush inserts rows still buffered.
func (w *Writer) Flush(ctx context.Context) *Error {
	return Guard(func() error {
		return w.w.Flush(ctx)
	})
}

// Close releases the session without flushing.
func (w *Writer) Close() *Error {
	return Guard(w.w.Close)
}
