package driver

import (
	"database/sql"
	"log/slog"
	"sync"
)

// pooling keeps the process wide connection pool switch and, once enabled,
// one shared *sql.DB per (driver, connection string).
var pooling struct {
	sync.Mutex
	enabled bool
	dbs     map[string]*sql.DB
}

// EnableConnectionPooling lets sessions opened afterwards share pooled
// connections. Best called once at startup, before the first session is
// opened. It cannot be turned off again.
func EnableConnectionPooling() {
	pooling.Lock()
	defer pooling.Unlock()
	if pooling.enabled {
		return
	}
	pooling.enabled = true
	pooling.dbs = make(map[string]*sql.DB)
	slog.Info("Connection pooling enabled")
}

// ConnectionPoolingEnabled reports whether EnableConnectionPooling was called.
func ConnectionPoolingEnabled() bool {
	pooling.Lock()
	defer pooling.Unlock()
	return pooling.enabled
}

// acquireDB returns a database handle for the connection string together with
// the function that gives it back. Without pooling every session gets a
// private handle limited to one connection, closed on release.
func acquireDB(driverName, dsn string) (*sql.DB, func() error, error) {
	pooling.Lock()
	defer pooling.Unlock()

	if pooling.enabled {
		key := driverName + "\x00" + dsn
		if db, ok := pooling.dbs[key]; ok {
			return db, func() error { return nil }, nil
		}
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, nil, err
		}
		pooling.dbs[key] = db
		return db, func() error { return nil }, nil
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, db.Close, nil
}
