// Package writer inserts Arrow record batches into a database table.
package writer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/columnar"
	"sql-arrow-bridge/internal/driver"
)

// ErrInvalidArgument marks writers that cannot be created with the given
// arguments and batches that do not match the writer schema.
var ErrInvalidArgument = errors.New("invalid writer argument")

// Writer buffers rows and inserts them chunkSize rows per statement. It owns
// its session.
type Writer struct {
	session   driver.Session
	table     string
	schema    *arrow.Schema
	chunkSize int
	pending   [][]any
	logger    *slog.Logger
}

// New creates a writer inserting into table. The writer takes ownership of
// session, also if New fails.
func New(session driver.Session, table string, schema *arrow.Schema, chunkSize int) (*Writer, error) {
	var err error
	switch {
	case strings.TrimSpace(table) == "":
		err = errors.Mark(errors.New("table name is empty"), ErrInvalidArgument)
	case schema == nil || schema.NumFields() == 0:
		err = errors.Mark(errors.New("schema has no fields"), ErrInvalidArgument)
	case chunkSize <= 0:
		err = errors.Mark(errors.Newf("chunk size must be positive, got %d", chunkSize), ErrInvalidArgument)
	}
	if err != nil {
		return nil, errors.CombineErrors(err, session.Close())
	}

	return &Writer{
		session:   session,
		table:     table,
		schema:    schema,
		chunkSize: chunkSize,
		pending:   make([][]any, 0, chunkSize),
		logger:    slog.Default().With("table", table),
	}, nil
}

// Schema is the schema batches must match.
func (w *Writer) Schema() *arrow.Schema {
	return w.schema
}

// WriteBatch buffers the rows of rec, inserting every full chunk. The caller
// keeps its reference to rec.
func (w *Writer) WriteBatch(ctx context.Context, rec arrow.Record) error {
	if !sameLayout(w.schema, rec.Schema()) {
		return errors.Mark(errors.Newf("batch schema %s does not match table schema %s", rec.Schema(), w.schema), ErrInvalidArgument)
	}

	cols := rec.Columns()
	for i := 0; i < int(rec.NumRows()); i++ {
		row := make([]any, len(cols))
		for j, col := range cols {
			row[j] = columnar.Value(col, i)
		}
		w.pending = append(w.pending, row)
		if len(w.pending) == w.chunkSize {
			if err := w.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush inserts the buffered rows. The buffer is emptied also if the insert
// fails.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := w.pending
	w.pending = make([][]any, 0, w.chunkSize)

	query, args := w.insertStatement(rows)
	if err := w.session.Exec(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "insert %d rows", len(rows))
	}
	w.logger.Debug("Inserted rows", "rows", len(rows))
	return nil
}

// Close releases the session. Rows not flushed are discarded.
func (w *Writer) Close() error {
	if n := len(w.pending); n > 0 {
		w.logger.Warn("Discarding rows that were not flushed", "rows", n)
	}
	w.pending = nil
	return w.session.Close()
}

func (w *Writer) insertStatement(rows [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(w.table)
	sb.WriteString(" (")
	for i, f := range w.schema.Fields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
	}
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*w.schema.NumFields())
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, v)
			sb.WriteString(w.session.Placeholder(len(args)))
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}

// sameLayout compares names and types, ignoring nullability and metadata.
func sameLayout(want, got *arrow.Schema) bool {
	if want.NumFields() != got.NumFields() {
		return false
	}
	for i := range want.Fields() {
		a, b := want.Field(i), got.Field(i)
		if a.Name != b.Name || !arrow.TypeEqual(a.Type, b.Type) {
			return false
		}
	}
	return true
}
