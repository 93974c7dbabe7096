package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/joho/godotenv"

	"sql-arrow-bridge/internal/boundary"
	"sql-arrow-bridge/internal/config"
	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/logging"
	"sql-arrow-bridge/internal/writer"
)

const (
	totalUsers        = 1000000
	totalTransactions = 5000000
	batchRows         = 10000
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	if err := logging.Setup(level, "text", os.Stderr); err != nil {
		panic(err)
	}

	ctx := context.Background()
	connect := func() (driver.Session, error) {
		s, e := boundary.Connect(ctx, boundary.ConnectOptions{
			DriverName:       cfg.DBDriver,
			ConnectionString: []byte(cfg.DBDSN),
			User:             []byte(cfg.DBUser),
			Password:         []byte(cfg.DBPassword),
			LoginTimeout:     cfg.LoginTimeout,
		})
		if e != nil {
			return nil, e
		}
		return s, nil
	}

	// Wait for DB to be ready
	var session driver.Session
	for i := 0; i < 30; i++ {
		if session, err = connect(); err == nil {
			break
		}
		slog.Info("Waiting for database...", "attempt", i+1, "error", err)
		time.Sleep(1 * time.Second)
	}
	if session == nil {
		panic(err)
	}

	slog.Info("Connected. Creating tables...", "driver", cfg.DBDriver)

	err = session.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name TEXT,
			email TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			score DOUBLE
		)
	`)
	if err != nil {
		panic(err)
	}
	err = session.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT,
			amount DECIMAL(15, 2),
			currency VARCHAR(3),
			status VARCHAR(20),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_user_id (user_id)
		)
	`)
	if err != nil {
		panic(err)
	}

	if err := session.Close(); err != nil {
		slog.Warn("Closing session failed", "error", err)
	}
	userCount := count(ctx, connect, "users")
	txCount := count(ctx, connect, "transactions")

	if userCount < totalUsers {
		seed(ctx, cfg, connect, "users", usersSchema, totalUsers, appendUsers)
	} else {
		slog.Info("Users already seeded", "count", userCount)
	}
	if txCount < totalTransactions {
		seed(ctx, cfg, connect, "transactions", transactionsSchema, totalTransactions, appendTransactions)
	} else {
		slog.Info("Transactions already seeded", "count", txCount)
	}

	slog.Info("Database schema and data prep complete.")
}

var (
	usersSchema = arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "email", Type: arrow.BinaryTypes.String},
		{Name: "created_at", Type: &arrow.TimestampType{Unit: arrow.Microsecond}},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	transactionsSchema = arrow.NewSchema([]arrow.Field{
		{Name: "user_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "amount", Type: &arrow.Decimal128Type{Precision: 15, Scale: 2}},
		{Name: "currency", Type: arrow.BinaryTypes.String},
		{Name: "status", Type: arrow.BinaryTypes.String},
		{Name: "created_at", Type: &arrow.TimestampType{Unit: arrow.Microsecond}},
	}, nil)
)

func appendUsers(b *array.RecordBuilder, idx int, now arrow.Timestamp) {
	b.Field(0).(*array.StringBuilder).Append(fmt.Sprintf("User%d", idx))
	b.Field(1).(*array.StringBuilder).Append(fmt.Sprintf("user%d@example.com", idx))
	b.Field(2).(*array.TimestampBuilder).Append(now)
	b.Field(3).(*array.Float64Builder).Append(float64(idx) * 0.1)
}

func appendTransactions(b *array.RecordBuilder, idx int, now arrow.Timestamp) {
	uid := (idx-1)%totalUsers + 1 // Cycle through users
	b.Field(0).(*array.Int64Builder).Append(int64(uid))
	// amount is uid * 0.25 with two decimal places
	b.Field(1).(*array.Decimal128Builder).Append(decimal128.FromI64(int64(uid) * 25))
	b.Field(2).(*array.StringBuilder).Append("USD")
	b.Field(3).(*array.StringBuilder).Append("COMPLETED")
	b.Field(4).(*array.TimestampBuilder).Append(now)
}

// seed inserts total generated rows into table through a writer.
func seed(
	ctx context.Context,
	cfg *config.Config,
	connect func() (driver.Session, error),
	table string,
	schema *arrow.Schema,
	total int,
	appendRow func(*array.RecordBuilder, int, arrow.Timestamp),
) {
	slog.Info("Seeding...", "table", table, "rows", total)
	start := time.Now()

	session, err := connect()
	if err != nil {
		panic(err)
	}
	w, err := writer.New(session, table, schema, cfg.InsertChunkSize)
	if err != nil {
		panic(err)
	}
	defer w.Close()

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for i := 0; i < total; i += batchRows {
		now := arrow.Timestamp(time.Now().UnixMicro())
		for j := 0; j < batchRows && i+j < total; j++ {
			appendRow(b, i+j+1, now)
		}
		rec := b.NewRecord()
		err := w.WriteBatch(ctx, rec)
		rec.Release()
		if err != nil {
			panic(err)
		}
		if (i+batchRows)%100000 == 0 {
			fmt.Printf("\rSeeding %s: %d/%d", table, i+batchRows, total)
		}
	}
	if err := w.Flush(ctx); err != nil {
		panic(err)
	}
	fmt.Println()
	slog.Info("Seeding complete", "table", table, "duration", time.Since(start))
}

// count uses a session of its own, closing the cursor closes it.
func count(ctx context.Context, connect func() (driver.Session, error), table string) int64 {
	session, err := connect()
	if err != nil {
		panic(err)
	}
	cur, err := session.Execute(ctx, "SELECT COUNT(*) FROM "+table, nil, 0)
	if err != nil {
		session.Close()
		panic(err)
	}
	defer cur.Close()

	var n int64
	if cur.Next() {
		if err := cur.Scan(&n); err != nil {
			panic(err)
		}
	}
	if err := cur.Err(); err != nil {
		panic(err)
	}
	return n
}
