package boundary

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/columnar"
	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/lifecycle"
)

// BufferOptions are the fetch settings of BindBuffers as primitive scalars.
// Zero caps mean unbounded or unset.
type BufferOptions struct {
	MaxRowsPerBatch     int
	MaxBytesPerBatch    int
	MaxTextSize         int
	MaxBinarySize       int
	FallibleAllocations bool
	FetchConcurrently   bool
	// TextEncoding is 0 auto, 1 narrow or 2 wide.
	TextEncoding uint8
}

// Reader drives one lifecycle.Result. Outputs are written only on success.
type Reader struct {
	result *lifecycle.Result
}

// NewReader returns a reader without a query.
func NewReader(opts ...lifecycle.Option) *Reader {
	return &Reader{result: lifecycle.New(opts...)}
}

// State is exposed for callers that log or test the reader.
func (r *Reader) State() lifecycle.State {
	return r.result.State()
}

// Query executes query on session. The reader takes ownership of session in
// any case. A zero timeout means none.
func (r *Reader) Query(ctx context.Context, session driver.Session, query []byte, params []driver.Param, timeout time.Duration) *Error {
	return Guard(func() error {
		if err := r.result.SetConnection(session); err != nil {
			return err
		}
		if !utf8.Valid(query) {
			return errors.Mark(errors.New("query is not valid UTF-8"), ErrInvalidArgument)
		}
		return r.result.PromoteToCursor(ctx, string(query), params, timeout)
	})
}

// BindBuffers binds fetch buffers to the current result set. A non-empty
// schema is taken over and replaces the discovered one; it is left empty also
// if binding fails.
func (r *Reader) BindBuffers(opts BufferOptions, schema *cdata.CArrowSchema) *Error {
	return Guard(func() error {
		b := fetch.NewBuilder().
			WithMaxRowsPerBatch(opts.MaxRowsPerBatch).
			WithMaxBytesPerBatch(opts.MaxBytesPerBatch).
			WithMaxTextSize(opts.MaxTextSize).
			WithMaxBinarySize(opts.MaxBinarySize).
			WithFallibleAllocations(opts.FallibleAllocations).
			WithTextEncoding(fetch.TextEncoding(opts.TextEncoding))

		if schema != nil && !columnar.IsEmptySchema(schema) {
			s, err := columnar.ImportSchema(schema)
			if err != nil {
				return errors.CombineErrors(err, r.result.Close())
			}
			b.WithSchema(s)
		}

		if err := r.result.PromoteToReader(b); err != nil {
			return err
		}
		if opts.FetchConcurrently {
			return r.result.IntoConcurrent()
		}
		return nil
	})
}

// Next moves the next batch into arr and schema and reports whether there was
// one. Without a result set there are no batches.
func (r *Reader) Next(arr *cdata.CArrowArray, schema *cdata.CArrowSchema, hasNext *bool) *Error {
	return Guard(func() error {
		if r.result.State() == lifecycle.StateIdle {
			*hasNext = false
			return nil
		}
		rec, err := r.result.NextBatch()
		if err != nil {
			return err
		}
		if rec == nil {
			*hasNext = false
			return nil
		}
		defer rec.Release()
		if err := columnar.ExportBatch(rec, arr, schema); err != nil {
			return err
		}
		*hasNext = true
		return nil
	})
}

// MoreResults advances to the next result set. Buffers have to be bound
// again before fetching from it.
func (r *Reader) MoreResults(hasMore *bool) *Error {
	return Guard(func() error {
		more, err := r.result.MoreResults()
		if err != nil {
			return err
		}
		*hasMore = more
		return nil
	})
}

// Schema moves a description of the current result set into out.
func (r *Reader) Schema(out *cdata.CArrowSchema) *Error {
	return Guard(func() error {
		s, err := r.result.Schema()
		if err != nil {
			return err
		}
		return columnar.ExportSchema(s, out)
	})
}

// IntoConcurrent starts prefetching batches in the background.
func (r *Reader) IntoConcurrent() *Error {
	return Guard(r.result.IntoConcurrent)
}

// Close releases everything the reader holds.
func (r *Reader) Close() *Error {
	return Guard(r.result.Close)
}
