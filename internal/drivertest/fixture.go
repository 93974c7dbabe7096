// Package drivertest provides a scripted database/sql driver for tests. It
// serves canned result sets per query text and counts the connections and
// cursors that are still open, so tests can verify that every resource was
// released.
package drivertest

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"sql-arrow-bridge/internal/driver"
)

var registered atomic.Int64

// Column describes one scripted column.
type Column struct {
	Name string
	// Type is reported as the database type name, e.g. "INTEGER".
	Type string
	// Length is reported if positive.
	Length int64
	// Precision and Scale are reported if Precision is positive.
	Precision int64
	Scale     int64
	Nullable  bool
	// ScanType defaults to interface{}.
	ScanType reflect.Type
}

// ResultSet is one scripted result. A result set without columns stands for a
// statement that does not produce rows.
type ResultSet struct {
	Columns []Column
	Rows    [][]sqldriver.Value
	// NextErr makes advancing past this result set fail.
	NextErr error
}

// Exec is a statement recorded by the fixture.
type Exec struct {
	Query string
	Args  []any
}

type script struct {
	sets []ResultSet
	err  error
}

// Fixture is a registered driver instance with its own scripts and counters.
type Fixture struct {
	name string
	dbms string

	mu      sync.Mutex
	scripts map[string]script
	execs   []Exec
	queries []Exec
	dsns    []string

	openConns atomic.Int64
	openRows  atomic.Int64
}

// New registers a fresh fixture driver reporting dbmsName as product name.
func New(dbmsName string) *Fixture {
	f := &Fixture{
		name:    fmt.Sprintf("fixture-%d", registered.Add(1)),
		dbms:    dbmsName,
		scripts: make(map[string]script),
	}
	sql.Register(f.name, f)
	return f
}

// DriverName is the name the fixture is registered under.
func (f *Fixture) DriverName() string {
	return f.name
}

// On scripts the result sets returned for query.
func (f *Fixture) On(query string, sets ...ResultSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[query] = script{sets: sets}
}

// Fail makes query fail with err. Use sqldriver.ErrBadConn to simulate a
// lost connection.
func (f *Fixture) Fail(query string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[query] = script{err: err}
}

// OpenConnections is the number of driver connections not closed yet.
func (f *Fixture) OpenConnections() int64 {
	return f.openConns.Load()
}

// OpenCursors is the number of driver rows not closed yet.
func (f *Fixture) OpenCursors() int64 {
	return f.openRows.Load()
}

// Execs returns the statements executed through Exec so far.
func (f *Fixture) Execs() []Exec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Exec(nil), f.execs...)
}

// Queries returns the queries executed so far together with their arguments.
func (f *Fixture) Queries() []Exec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Exec(nil), f.queries...)
}

// DSNs returns the connection strings connections were opened with.
func (f *Fixture) DSNs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dsns...)
}

// Session opens a session on the fixture and closes it when the test ends.
func (f *Fixture) Session(t testing.TB) *driver.SQLSession {
	t.Helper()
	s, err := driver.Open(context.Background(), driver.Options{DriverName: f.name, DSN: "fixture"})
	if err != nil {
		t.Fatalf("open fixture session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Open implements database/sql/driver.Driver.
func (f *Fixture) Open(dsn string) (sqldriver.Conn, error) {
	f.mu.Lock()
	f.dsns = append(f.dsns, dsn)
	f.mu.Unlock()
	f.openConns.Add(1)
	return &conn{fixture: f}, nil
}

type conn struct {
	fixture *Fixture
	closed  bool
}

func (c *conn) Prepare(query string) (sqldriver.Stmt, error) {
	return nil, fmt.Errorf("drivertest: prepared statements are not supported")
}

func (c *conn) Begin() (sqldriver.Tx, error) {
	return nil, fmt.Errorf("drivertest: transactions are not supported")
}

func (c *conn) Close() error {
	if !c.closed {
		c.closed = true
		c.fixture.openConns.Add(-1)
	}
	return nil
}

func (c *conn) DBMSName() string {
	return c.fixture.dbms
}

func (c *conn) Ping(ctx context.Context) error {
	return nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []sqldriver.NamedValue) (sqldriver.Rows, error) {
	f := c.fixture
	f.mu.Lock()
	s, ok := f.scripts[query]
	f.queries = append(f.queries, Exec{Query: query, Args: namedValues(args)})
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("drivertest: unexpected query %q", query)
	}
	if s.err != nil {
		return nil, s.err
	}

	sets := s.sets
	if len(sets) == 0 {
		sets = []ResultSet{{}}
	}
	f.openRows.Add(1)
	return &rows{fixture: f, sets: sets}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []sqldriver.NamedValue) (sqldriver.Result, error) {
	f := c.fixture
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.scripts[query]; ok && s.err != nil {
		return nil, s.err
	}
	f.execs = append(f.execs, Exec{Query: query, Args: namedValues(args)})
	return sqldriver.RowsAffected(0), nil
}

func namedValues(args []sqldriver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

// rows walks the scripted result sets, one after the other.
type rows struct {
	fixture *Fixture
	sets    []ResultSet
	current int
	row     int
	closed  bool
}

func (r *rows) set() ResultSet {
	return r.sets[r.current]
}

func (r *rows) Columns() []string {
	cols := r.set().Columns
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func (r *rows) Close() error {
	if !r.closed {
		r.closed = true
		r.fixture.openRows.Add(-1)
	}
	return nil
}

func (r *rows) Next(dest []sqldriver.Value) error {
	set := r.set()
	if r.row >= len(set.Rows) {
		return io.EOF
	}
	copy(dest, set.Rows[r.row])
	r.row++
	return nil
}

func (r *rows) HasNextResultSet() bool {
	return r.current+1 < len(r.sets) || r.set().NextErr != nil
}

func (r *rows) NextResultSet() error {
	if err := r.set().NextErr; err != nil {
		return err
	}
	if !r.HasNextResultSet() {
		return io.EOF
	}
	r.current++
	r.row = 0
	return nil
}

func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return r.set().Columns[index].Type
}

func (r *rows) ColumnTypeLength(index int) (int64, bool) {
	l := r.set().Columns[index].Length
	return l, l > 0
}

func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	return r.set().Columns[index].Nullable, true
}

func (r *rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	c := r.set().Columns[index]
	return c.Precision, c.Scale, c.Precision > 0
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	if t := r.set().Columns[index].ScanType; t != nil {
		return t
	}
	return anyType
}
