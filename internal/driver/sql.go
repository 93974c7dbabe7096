package driver

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// knownDBMS maps driver names to the product name their servers report, for
// drivers that do not expose it themselves.
var knownDBMS = map[string]string{
	"mysql":    "MySQL",
	"postgres": "PostgreSQL",
	"pgx":      "PostgreSQL",
}

// Options describe how to open a session.
type Options struct {
	// DriverName is the database/sql driver, e.g. "mysql" or "postgres".
	DriverName string
	// DSN is the connection string in the driver's own syntax.
	DSN string
	// User and Password are appended to the connection string if not empty.
	User     string
	Password string
	// LoginTimeout bounds connecting. Zero leaves the driver default.
	LoginTimeout time.Duration
}

// SQLSession is a Session on a single database/sql connection.
type SQLSession struct {
	driverName string
	db         *sql.DB
	conn       *sql.Conn
	release    func() error
	dbmsName   string
}

// Open connects to the data source described by opts.
func Open(ctx context.Context, opts Options) (*SQLSession, error) {
	dsn, err := ConnectionString(opts.DriverName, opts.DSN, opts.User, opts.Password, opts.LoginTimeout)
	if err != nil {
		return nil, err
	}

	db, release, err := acquireDB(opts.DriverName, dsn)
	if err != nil {
		return nil, markDriver(err, "open database")
	}

	if opts.LoginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.LoginTimeout)
		defer cancel()
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.CombineErrors(markDriver(err, "connect"), release())
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.CombineErrors(markDriver(err, "ping"), release())
	}

	return &SQLSession{
		driverName: opts.DriverName,
		db:         db,
		conn:       conn,
		release:    release,
	}, nil
}

func (s *SQLSession) Name() string {
	return s.driverName
}

func (s *SQLSession) DBMSName(ctx context.Context) (string, error) {
	if s.dbmsName != "" {
		return s.dbmsName, nil
	}
	if s.conn == nil {
		return "", errors.Mark(errors.New("session is closed"), ErrDriver)
	}

	var name string
	err := s.conn.Raw(func(driverConn any) error {
		if n, ok := driverConn.(interface{ DBMSName() string }); ok {
			name = n.DBMSName()
		}
		return nil
	})
	if err != nil {
		return "", markDriver(err, "query dbms name")
	}
	if name == "" {
		name = knownDBMS[s.driverName]
	}
	if name == "" {
		name = s.driverName
	}
	s.dbmsName = name
	return name, nil
}

func (s *SQLSession) Execute(ctx context.Context, query string, params []Param, timeout time.Duration) (Cursor, error) {
	if s.conn == nil {
		return nil, errors.Mark(errors.New("session is closed"), ErrDriver)
	}

	// The deadline covers the lifetime of the cursor, database/sql closes the
	// rows once the context is done.
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	rows, err := s.conn.QueryContext(ctx, query, paramArgs(params)...)
	if err != nil {
		cancel()
		return nil, markDriver(err, "execute query")
	}

	cols, err := columnsOf(rows)
	if err != nil {
		cancel()
		return nil, errors.CombineErrors(err, rows.Close())
	}
	if len(cols) == 0 {
		err := rows.Close()
		cancel()
		return nil, markDriver(err, "close statement")
	}

	slog.Debug("Query produced a result set", "driver", s.driverName, "columns", len(cols))
	return &sqlCursor{rows: rows, cols: cols, session: s, cancel: cancel}, nil
}

func (s *SQLSession) Exec(ctx context.Context, query string, args ...any) error {
	if s.conn == nil {
		return errors.Mark(errors.New("session is closed"), ErrDriver)
	}
	_, err := s.conn.ExecContext(ctx, query, args...)
	return markDriver(err, "execute statement")
}

func (s *SQLSession) Placeholder(n int) string {
	switch s.driverName {
	case "postgres", "pgx":
		return "$" + strconv.Itoa(n)
	default:
		return "?"
	}
}

func (s *SQLSession) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return markDriver(errors.CombineErrors(err, s.release()), "close session")
}

// sqlCursor owns both the rows and the session they were produced on.
type sqlCursor struct {
	rows    *sql.Rows
	cols    []Column
	session *SQLSession
	cancel  context.CancelFunc
}

func (c *sqlCursor) Columns() ([]Column, error) {
	return c.cols, nil
}

func (c *sqlCursor) Next() bool {
	return c.rows.Next()
}

func (c *sqlCursor) Scan(dest ...any) error {
	return markDriver(c.rows.Scan(dest...), "fetch row")
}

func (c *sqlCursor) Err() error {
	return markDriver(c.rows.Err(), "fetch rows")
}

func (c *sqlCursor) NextResultSet() (bool, error) {
	// Statements without columns (row counts) are not result sets.
	for c.rows.NextResultSet() {
		cols, err := columnsOf(c.rows)
		if err != nil {
			return false, err
		}
		if len(cols) > 0 {
			c.cols = cols
			return true, nil
		}
	}
	return false, markDriver(c.rows.Err(), "advance to next result set")
}

func (c *sqlCursor) Close() error {
	err := markDriver(c.rows.Close(), "close cursor")
	c.cancel()
	return errors.CombineErrors(err, c.session.Close())
}

func columnsOf(rows *sql.Rows) ([]Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, markDriver(err, "describe columns")
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		col := Column{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			Nullable:     true,
			ScanType:     ct.ScanType(),
		}
		col.Length, col.HasLength = ct.Length()
		col.Precision, col.Scale, col.HasPrecisionScale = ct.DecimalSize()
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		cols[i] = col
	}
	return cols, nil
}
