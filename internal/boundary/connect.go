package boundary

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/logging"
)

// ConnectOptions describe a connection. User and Password are appended to the
// connection string as escaped attributes if set.
type ConnectOptions struct {
	DriverName       string
	ConnectionString []byte
	User             []byte
	Password         []byte
	LoginTimeout     time.Duration
}

// Connect opens a session. MongoDB connection strings open a MongoSession,
// everything else goes through database/sql.
func Connect(ctx context.Context, opts ConnectOptions) (driver.Session, *Error) {
	var session driver.Session
	e := Guard(func() error {
		for _, b := range [][]byte{opts.ConnectionString, opts.User, opts.Password} {
			if !utf8.Valid(b) {
				return errors.Mark(errors.New("connection arguments must be valid UTF-8"), ErrInvalidArgument)
			}
		}

		switch strings.ToLower(opts.DriverName) {
		case "mongo", "mongodb":
			s, err := driver.OpenMongo(ctx, string(opts.ConnectionString), opts.LoginTimeout)
			if err != nil {
				return err
			}
			session = s
		default:
			s, err := driver.Open(ctx, driver.Options{
				DriverName:   opts.DriverName,
				DSN:          string(opts.ConnectionString),
				User:         string(opts.User),
				Password:     string(opts.Password),
				LoginTimeout: opts.LoginTimeout,
			})
			if err != nil {
				return err
			}
			session = s
		}

		// Asking for the product name may cost a round trip.
		if slog.Default().Enabled(ctx, slog.LevelDebug) {
			name, err := session.DBMSName(ctx)
			if err != nil {
				return errors.CombineErrors(err, session.Close())
			}
			slog.Debug("Connected", "driver", opts.DriverName, "dbms", name)
		}
		return nil
	})
	return session, e
}

// LogToStderr installs the default logger. See logging.LevelFromVerbosity for
// the levels.
func LogToStderr(verbosity int) *Error {
	return Guard(func() error {
		return logging.SetupStderr(verbosity)
	})
}

// EnableConnectionPooling switches on pooling for sessions opened later.
func EnableConnectionPooling() *Error {
	return Guard(func() error {
		driver.EnableConnectionPooling()
		return nil
	})
}
