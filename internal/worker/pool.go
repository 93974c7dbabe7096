package worker

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/exporter"
	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/lifecycle"
	"sql-arrow-bridge/internal/storage"
)

// SessionOpener opens a fresh session for one job.
type SessionOpener func(ctx context.Context) (driver.Session, error)

// Options configure how jobs run.
type Options struct {
	Workers          int
	MaxDBConcurrency int64
	// NewBuilder returns the fetch policy builder for each result set.
	NewBuilder func() (*fetch.Builder, error)
	// FetchConcurrently prefetches the next batch while encoding.
	FetchConcurrently bool
	QueryTimeout      time.Duration
	UseGzip           bool
	// ResultOptions are passed to every lifecycle.Result, e.g. an allocator.
	ResultOptions []lifecycle.Option
}

// Pool manages concurrent export jobs and limits database load.
// It implements a worker pool pattern with a separate semaphore for DB sessions,
// allowing for fine-grained control over resource usage.
type Pool struct {
	// jobQueue allows for buffering incoming requests before workers pick them up.
	jobQueue chan *ExportJob
	// dbSem restricts the number of concurrent queries to the database.
	dbSem *semaphore.Weighted
	wg    sync.WaitGroup
	quit  chan struct{}

	open    SessionOpener
	storage storage.Provider
	opts    Options
}

// NewPool initializes a worker pool with the specified configuration.
// It does not start the workers; call Start() to begin processing.
func NewPool(open SessionOpener, store storage.Provider, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxDBConcurrency <= 0 {
		opts.MaxDBConcurrency = 1
	}
	if opts.NewBuilder == nil {
		opts.NewBuilder = func() (*fetch.Builder, error) { return fetch.NewBuilder(), nil }
	}
	return &Pool{
		jobQueue: make(chan *ExportJob, 100), // Bounded buffer to prevent infinite memory growth
		dbSem:    semaphore.NewWeighted(opts.MaxDBConcurrency),
		quit:     make(chan struct{}),
		open:     open,
		storage:  store,
		opts:     opts,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	slog.Info("Worker pool started", "workers", p.opts.Workers)
}

// Submit queues job. It reports false if the queue is full or the pool is
// stopping.
func (p *Pool) Submit(job *ExportJob) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.jobQueue <- job:
		return true
	default:
		// Queue full
		return false
	}
}

// Stop initiates graceful shutdown. Jobs still queued are not run.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	slog.Debug("Worker started", "worker_id", id)

	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobQueue:
			p.processJob(id, job)
		}
	}
}

func (p *Pool) processJob(workerID int, job *ExportJob) {
	defer close(job.done)
	defer job.Cancel()
	slog.Info("Processing job", "worker_id", workerID, "job_id", job.ID)

	job.Started = time.Now()
	job.Status = StatusProcessing
	waitTime := job.Started.Sub(job.Submitted)

	// 1. Acquire DB Semaphore
	if err := p.dbSem.Acquire(job.Ctx, 1); err != nil {
		p.failJob(job, fmt.Errorf("failed to acquire db session: %w", err))
		return
	}
	err := p.executeExport(job)
	p.dbSem.Release(1)

	if err != nil {
		p.failJob(job, err)
		return
	}

	job.Status = StatusCompleted
	job.Finished = time.Now()
	slog.Info("Job completed",
		"job_id", job.ID,
		"rows", job.Rows(),
		"result_sets", len(job.Keys),
		"wait", waitTime,
		"duration", job.Finished.Sub(job.Started),
	)
}

func (p *Pool) executeExport(job *ExportJob) error {
	session, err := p.open(job.Ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	result := lifecycle.New(p.opts.ResultOptions...)
	defer func() {
		if err := result.Close(); err != nil {
			slog.Warn("Releasing result failed", "job_id", job.ID, "error", err)
		}
	}()
	if err := result.SetConnection(session); err != nil {
		return fmt.Errorf("hand over session: %w", err)
	}
	if err := result.PromoteToCursor(job.Ctx, job.Query, job.Params, p.opts.QueryTimeout); err != nil {
		return fmt.Errorf("query execution failed: %w", err)
	}
	if result.State() == lifecycle.StateIdle {
		slog.Info("Query produced no result set", "job_id", job.ID)
		return nil
	}

	streamer := exporter.NewStreamer(p.opts.FetchConcurrently)
	for i := 0; ; i++ {
		key := p.keyFor(job, i)
		stats, err := p.exportResultSet(job.Ctx, result, streamer, job.Format, key)
		if err != nil {
			return fmt.Errorf("export result set %d: %w", i, err)
		}
		job.Keys = append(job.Keys, key)
		job.Stats = append(job.Stats, stats)

		more, err := result.MoreResults()
		if err != nil {
			return fmt.Errorf("advance to result set %d: %w", i+1, err)
		}
		if !more {
			return nil
		}
	}
}

func (p *Pool) keyFor(job *ExportJob, resultSet int) string {
	key := fmt.Sprintf("exports/%s", job.ID)
	if resultSet > 0 {
		key += fmt.Sprintf("-%d", resultSet)
	}
	key += "." + exporter.Extension(job.Format)
	if p.opts.UseGzip {
		key += ".gz"
	}
	return key
}

// exportResultSet runs DB -> Encoder -> [Gzip?] -> Storage for the current
// result set.
func (p *Pool) exportResultSet(ctx context.Context, result *lifecycle.Result, streamer *exporter.Streamer, format, key string) (*exporter.ExportResult, error) {
	builder, err := p.opts.NewBuilder()
	if err != nil {
		return nil, err
	}

	storageWriter, errChan := p.storage.StreamToFile(ctx, key)
	if storageWriter == nil {
		return nil, <-errChan
	}

	// Prepare Output Writer (maybe wrapped in Gzip)
	var finalWriter io.Writer = storageWriter
	var gw *gzip.Writer
	if p.opts.UseGzip {
		gw = gzip.NewWriter(storageWriter)
		finalWriter = gw
	}

	encoder, err := exporter.NewEncoder(format, finalWriter)
	if err != nil {
		_ = storageWriter.Close()
		<-errChan
		return nil, err
	}

	stats, exportErr := streamer.StreamResultSet(ctx, result, builder, encoder)

	// Close Encoder (some formats need to finish writing/flushing)
	encoderCloseErr := encoder.Close()

	// If Gzip, close it first to flush footer
	var outputCloseErr error
	if gw != nil {
		outputCloseErr = gw.Close()
	}

	// Then close the underlying storage writer
	storageCloseErr := storageWriter.Close()

	// Wait for upload result
	uploadErr := <-errChan

	if exportErr != nil {
		return nil, fmt.Errorf("export failed: %w", exportErr)
	}
	if encoderCloseErr != nil {
		return nil, fmt.Errorf("encoder close failed: %w", encoderCloseErr)
	}
	if outputCloseErr != nil {
		return nil, fmt.Errorf("gzip close failed: %w", outputCloseErr)
	}
	if storageCloseErr != nil {
		return nil, fmt.Errorf("storage close failed: %w", storageCloseErr)
	}
	if uploadErr != nil {
		return nil, fmt.Errorf("upload failed: %w", uploadErr)
	}
	return stats, nil
}

func (p *Pool) failJob(job *ExportJob, err error) {
	job.Status = StatusFailed
	job.Error = err
	job.Finished = time.Now()
	slog.Error("Job failed", "job_id", job.ID, "error", err)
}
