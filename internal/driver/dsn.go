package driver

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
)

// ConnectionString merges separately supplied credentials and the login
// timeout into dsn, using the syntax of the given driver. Empty user or
// password leave the dsn untouched.
func ConnectionString(driverName, dsn, user, password string, loginTimeout time.Duration) (string, error) {
	switch driverName {
	case "mysql":
		return mysqlConnectionString(dsn, user, password, loginTimeout)
	case "postgres", "pgx":
		return postgresConnectionString(dsn, user, password, loginTimeout)
	default:
		if user != "" {
			dsn = AppendAttribute(dsn, "UID", user)
		}
		if password != "" {
			dsn = AppendAttribute(dsn, "PWD", password)
		}
		return dsn, nil
	}
}

func mysqlConnectionString(dsn, user, password string, loginTimeout time.Duration) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "parse mysql dsn"), ErrDriver)
	}
	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Passwd = password
	}
	if loginTimeout > 0 {
		cfg.Timeout = loginTimeout
	}
	return cfg.FormatDSN(), nil
}

func postgresConnectionString(dsn, user, password string, loginTimeout time.Duration) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", errors.Mark(errors.Wrap(err, "parse postgres url"), ErrDriver)
		}
		name := u.User.Username()
		if user != "" {
			name = user
		}
		pass, hasPass := u.User.Password()
		if password != "" {
			pass, hasPass = password, true
		}
		if name != "" || hasPass {
			if hasPass {
				u.User = url.UserPassword(name, pass)
			} else {
				u.User = url.User(name)
			}
		}
		if loginTimeout > 0 {
			q := u.Query()
			q.Set("connect_timeout", strconv.Itoa(timeoutSeconds(loginTimeout)))
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	parts := []string{}
	if strings.TrimSpace(dsn) != "" {
		parts = append(parts, strings.TrimSpace(dsn))
	}
	if user != "" {
		parts = append(parts, "user="+quotePostgresValue(user))
	}
	if password != "" {
		parts = append(parts, "password="+quotePostgresValue(password))
	}
	if loginTimeout > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(timeoutSeconds(loginTimeout)))
	}
	return strings.Join(parts, " "), nil
}

func timeoutSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// quotePostgresValue quotes a libpq keyword/value connection parameter.
func quotePostgresValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// AppendAttribute appends name=value; to an ODBC style connection string,
// escaping the value if needed.
func AppendAttribute(connectionString, name, value string) string {
	return connectionString + name + "=" + EscapeAttributeValue(value) + ";"
}

// EscapeAttributeValue escapes a value for an ODBC style connection string.
// Values containing ';' or '+' are wrapped in braces, closing braces inside
// them are doubled.
func EscapeAttributeValue(value string) string {
	if !strings.ContainsAny(value, ";+") {
		return value
	}
	return "{" + strings.ReplaceAll(value, "}", "}}") + "}"
}
