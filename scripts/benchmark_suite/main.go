package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/joho/godotenv"

	"sql-arrow-bridge/internal/boundary"
	"sql-arrow-bridge/internal/config"
	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/lifecycle"
	"sql-arrow-bridge/internal/logging"
)

type Scenario struct {
	Readers     int
	Concurrency int
	BatchSize   int
	Concurrent  bool
	Limit       int
	Description string
}

type Result struct {
	Rows       int64
	Batches    int
	FirstBatch time.Duration
	Total      time.Duration
	Error      error
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := logging.Setup(logging.LevelFromVerbosity(1), "text", os.Stderr); err != nil {
		panic(err)
	}

	// Define Scenarios
	scenarios := []Scenario{
		{Readers: 10, Concurrency: 2, BatchSize: 1000, Limit: 100000, Description: "Baseline (small batches)"},
		{Readers: 10, Concurrency: 2, BatchSize: 65535, Limit: 100000, Description: "Large batches"},
		{Readers: 10, Concurrency: 2, BatchSize: 65535, Concurrent: true, Limit: 100000, Description: "Large batches, concurrent fetch"},
		{Readers: 20, Concurrency: 10, BatchSize: 10000, Concurrent: true, Limit: 20000, Description: "Many parallel readers"},
		{
			Readers:     3,
			Concurrency: 1,
			BatchSize:   65535,
			Concurrent:  true,
			Limit:       1000000,
			Description: "Complex JOIN (Users + Transactions) - 1M rows",
		},
	}

	// All readers of a scenario share one memory budget, like the exporter does.
	limit := cfg.MemoryLimit
	for _, scenario := range scenarios {
		runScenario(cfg, scenario, limit)
	}
}

func runScenario(cfg *config.Config, sc Scenario, limit int64) {
	fmt.Printf("\n=======================================================\n")
	fmt.Printf("Scenario: %s\n", sc.Description)
	fmt.Printf("Readers: %d | Concurrency: %d | Batch: %d | Concurrent fetch: %t | Limit: %d\n",
		sc.Readers, sc.Concurrency, sc.BatchSize, sc.Concurrent, sc.Limit)
	fmt.Printf("=======================================================\n")

	var mem memory.Allocator = memory.DefaultAllocator
	if limit > 0 {
		mem = fetch.NewLimitedAllocator(mem, limit)
	}

	results := make(chan Result, sc.Readers)
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, sc.Concurrency) // Limit concurrency

	startTime := time.Now()

	for i := 0; i < sc.Readers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			results <- readAll(cfg, sc, mem)

			// Simple progress bar
			if id%2 == 0 {
				fmt.Print(".")
			}
		}(i)
	}

	wg.Wait()
	close(results)
	totalTime := time.Since(startTime)
	fmt.Println()

	// Analyze Results
	var firstBatch, total []time.Duration
	var rows int64
	var failures int

	for res := range results {
		if res.Error != nil {
			failures++
			fmt.Printf("error: %v\n", res.Error)
			continue
		}
		rows += res.Rows
		firstBatch = append(firstBatch, res.FirstBatch)
		total = append(total, res.Total)
	}

	sort.Slice(firstBatch, func(i, j int) bool { return firstBatch[i] < firstBatch[j] })
	sort.Slice(total, func(i, j int) bool { return total[i] < total[j] })

	// Report
	fmt.Printf("\nRESULTS:\n")
	fmt.Printf("Total Duration: %v\n", totalTime)
	fmt.Printf("Throughput: %.0f rows/sec\n", float64(rows)/totalTime.Seconds())
	fmt.Printf("Success Rate: %.1f%%\n", float64(sc.Readers-failures)/float64(sc.Readers)*100)

	if len(firstBatch) > 0 {
		fmt.Printf("First Batch (P95): %v\n", firstBatch[int(float64(len(firstBatch))*0.95)])
	}
	if len(total) > 0 {
		fmt.Printf("Result Set Read (P95): %v\n", total[int(float64(len(total))*0.95)])
	}
}

// readAll fetches every batch of the scenario query and drops it.
func readAll(cfg *config.Config, sc Scenario, mem memory.Allocator) Result {
	ctx := context.Background()
	start := time.Now()

	query := fmt.Sprintf("SELECT id, name, created_at FROM users LIMIT %d", sc.Limit)
	if strings.Contains(sc.Description, "JOIN") {
		query = fmt.Sprintf(`
			SELECT u.name, u.email, t.amount, t.currency, t.created_at 
			FROM users u 
			JOIN transactions t ON u.id = t.user_id 
			LIMIT %d`, sc.Limit)
	}

	session, e := boundary.Connect(ctx, boundary.ConnectOptions{
		DriverName:       cfg.DBDriver,
		ConnectionString: []byte(cfg.DBDSN),
		User:             []byte(cfg.DBUser),
		Password:         []byte(cfg.DBPassword),
		LoginTimeout:     cfg.LoginTimeout,
	})
	if e != nil {
		return Result{Error: e}
	}

	r := lifecycle.New(lifecycle.WithAllocator(mem))
	defer r.Close()

	if err := r.SetConnection(session); err != nil {
		return Result{Error: err}
	}
	if err := r.PromoteToCursor(ctx, query, nil, cfg.QueryTimeout); err != nil {
		return Result{Error: err}
	}
	b := fetch.NewBuilder().
		WithMaxRowsPerBatch(sc.BatchSize).
		WithMaxBytesPerBatch(cfg.MaxBytesPerBatch).
		WithFallibleAllocations(true)
	if err := r.PromoteToReader(b); err != nil {
		return Result{Error: err}
	}
	if sc.Concurrent {
		if err := r.IntoConcurrent(); err != nil {
			return Result{Error: err}
		}
	}

	var res Result
	for r.State() != lifecycle.StateIdle {
		rec, err := r.NextBatch()
		if err != nil {
			return Result{Error: err}
		}
		if rec == nil {
			break
		}
		if res.Batches == 0 {
			res.FirstBatch = time.Since(start)
		}
		res.Batches++
		res.Rows += rec.NumRows()
		rec.Release()
	}
	res.Total = time.Since(start)
	return res
}
