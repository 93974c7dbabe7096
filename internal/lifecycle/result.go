// Package lifecycle drives one query execution from an open connection over
// cursors and bound readers to the end of its last result set.
//
// A Result holds exactly one payload at a time. Every transition first swaps
// the payload out for the idle placeholder, so a failed or aborted transition
// leaves the Result idle instead of holding a half moved payload.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/columnar"
	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/fetch"
)

// State names the payload a Result currently holds.
type State int

const (
	StateIdle State = iota
	StateConnection
	StateCursor
	StateSequentialReader
	StateConcurrentReader
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnection:
		return "connection"
	case StateCursor:
		return "cursor"
	case StateSequentialReader:
		return "sequential reader"
	case StateConcurrentReader:
		return "concurrent reader"
	default:
		return "unknown"
	}
}

// payload is implemented by the five states only.
type payload interface {
	state() State
}

type idle struct{}

type connection struct {
	session driver.Session
}

type cursor struct {
	cursor driver.Cursor
}

type sequential struct {
	reader *fetch.SequentialReader
}

type concurrent struct {
	reader *fetch.ConcurrentReader
}

func (idle) state() State       { return StateIdle }
func (connection) state() State { return StateConnection }
func (cursor) state() State     { return StateCursor }
func (sequential) state() State { return StateSequentialReader }
func (concurrent) state() State { return StateConcurrentReader }

// Result is the lifecycle of one query execution. It is not safe for
// concurrent use.
type Result struct {
	payload  payload
	dbmsName string
	mem      memory.Allocator
	logger   *slog.Logger
}

// Option configures a Result.
type Option func(*Result)

// WithAllocator sets the allocator for fetch buffers.
func WithAllocator(mem memory.Allocator) Option {
	return func(r *Result) {
		r.mem = mem
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Result) {
		r.logger = logger
	}
}

// New returns an idle Result.
func New(opts ...Option) *Result {
	r := &Result{
		payload: idle{},
		mem:     memory.DefaultAllocator,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State reports the current payload.
func (r *Result) State() State {
	return r.payload.state()
}

// DBMSName is the product name cached when the cursor was opened.
func (r *Result) DBMSName() string {
	return r.dbmsName
}

// take hands out the payload and leaves the idle placeholder behind.
func (r *Result) take() payload {
	p := r.payload
	r.payload = idle{}
	return p
}

func (r *Result) set(p payload) {
	r.payload = p
	r.logger.Debug("Result state changed", "state", p.state().String(), "dbms", r.dbmsName)
}

func violation(op string, p payload) error {
	return errors.AssertionFailedf("%s is not allowed in state %s", errors.Safe(op), errors.Safe(p.state().String()))
}

// SetConnection makes s the payload, releasing whatever was held before. The
// Result owns s from now on, also if releasing the previous payload fails.
func (r *Result) SetConnection(s driver.Session) error {
	err := release(r.take())
	r.dbmsName = ""
	r.set(connection{session: s})
	return err
}

// PromoteToCursor executes query on the held connection. If the query
// produces no result set the connection is released and the Result becomes
// idle. On a driver error the connection is kept, unless the error means it
// is lost.
func (r *Result) PromoteToCursor(ctx context.Context, query string, params []driver.Param, timeout time.Duration) error {
	p := r.take()
	conn, ok := p.(connection)
	if !ok {
		r.payload = p
		return violation("promote to cursor", p)
	}

	name, err := conn.session.DBMSName(ctx)
	if err != nil {
		return r.keepUnlessLost(conn, err)
	}

	cur, err := conn.session.Execute(ctx, query, params, timeout)
	if err != nil {
		return r.keepUnlessLost(conn, err)
	}
	if cur == nil {
		r.logger.Debug("Query produced no result set", "dbms", name)
		return conn.session.Close()
	}

	r.dbmsName = name
	r.set(cursor{cursor: cur})
	return nil
}

func (r *Result) keepUnlessLost(conn connection, err error) error {
	if !driver.IsConnectionLost(err) {
		r.payload = conn
		return err
	}
	if closeErr := conn.session.Close(); closeErr != nil {
		r.logger.Debug("Closing lost connection failed", "error", closeErr)
	}
	r.logger.Warn("Connection lost, result is idle now", "error", err)
	return err
}

// PromoteToReader binds fetch buffers built from b to the cursor. In the idle
// state this is a no-op, the query had no result set. On failure every
// resource of the cursor is released and the Result becomes idle.
func (r *Result) PromoteToReader(b *fetch.Builder) error {
	p := r.take()
	switch p := p.(type) {
	case idle:
		return nil
	case cursor:
		policy, err := b.Build(r.dbmsName)
		if err != nil {
			return errors.CombineErrors(err, p.cursor.Close())
		}
		reader, err := fetch.NewSequentialReader(p.cursor, policy, r.mem)
		if err != nil {
			return err
		}
		r.set(sequential{reader: reader})
		return nil
	default:
		r.payload = p
		return violation("promote to reader", p)
	}
}

// NextBatch fetches the next batch of the bound reader. It returns nil and no
// error at the end of the result set. The state does not change, also not on
// error. The caller owns the returned record.
func (r *Result) NextBatch() (arrow.Record, error) {
	switch p := r.payload.(type) {
	case sequential:
		return p.reader.NextBatch()
	case concurrent:
		return p.reader.NextBatch()
	default:
		return nil, violation("next batch", p)
	}
}

// MoreResults releases the current reader or cursor and advances to the next
// result set. It reports true and leaves the Result in the cursor state if
// there is one, otherwise the Result becomes idle. Fetch buffers for the new
// result set are bound by another PromoteToReader, possibly with a different
// policy.
//
// Idle reports false, whether a result set was consumed before or never
// existed. A connection without a query reports false and is kept.
func (r *Result) MoreResults() (bool, error) {
	var cur driver.Cursor
	switch p := r.take().(type) {
	case idle:
		return false, nil
	case connection:
		r.payload = p
		return false, nil
	case cursor:
		cur = p.cursor
	case sequential:
		cur = p.reader.IntoCursor()
	case concurrent:
		cur = p.reader.IntoSequential().IntoCursor()
	}

	more, err := cur.NextResultSet()
	if err != nil {
		return false, errors.CombineErrors(err, cur.Close())
	}
	if !more {
		r.logger.Debug("No more result sets", "dbms", r.dbmsName)
		return false, cur.Close()
	}
	r.set(cursor{cursor: cur})
	return true, nil
}

// IntoConcurrent moves the bound reader to a background goroutine which
// prefetches the next batch. It is a no-op when already concurrent or idle.
func (r *Result) IntoConcurrent() error {
	switch p := r.payload.(type) {
	case idle, concurrent:
		return nil
	case sequential:
		r.take()
		r.set(concurrent{reader: fetch.NewConcurrentReader(p.reader)})
		return nil
	default:
		return violation("into concurrent", p)
	}
}

// Schema describes the current result set: no fields if there is none, the
// column metadata of a cursor, or the schema of the bound reader. It never
// changes the state.
func (r *Result) Schema() (*arrow.Schema, error) {
	switch p := r.payload.(type) {
	case cursor:
		cols, err := p.cursor.Columns()
		if err != nil {
			return nil, err
		}
		return fetch.SchemaFor(cols, fetch.QuirksFor(r.dbmsName))
	case sequential:
		return p.reader.Schema(), nil
	case concurrent:
		return p.reader.Schema(), nil
	default:
		return columnar.EmptySchema(), nil
	}
}

// Close releases the payload. A concurrent reader is stopped and joined
// before its cursor is released. The Result is idle afterwards and may be
// reused.
func (r *Result) Close() error {
	return release(r.take())
}

func release(p payload) error {
	switch p := p.(type) {
	case connection:
		return p.session.Close()
	case cursor:
		return p.cursor.Close()
	case sequential:
		return p.reader.Close()
	case concurrent:
		return p.reader.Close()
	default:
		return nil
	}
}
