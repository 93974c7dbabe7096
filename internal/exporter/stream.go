package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/lifecycle"
)

// ExportResult contains stats about the export of one result set.
type ExportResult struct {
	RowsProcessed int64
	Batches       int
	Duration      time.Duration
}

// Streamer moves the current result set of a lifecycle.Result into an
// encoder, one batch at a time, so memory stays bounded by the fetch policy.
type Streamer struct {
	concurrent bool
}

// NewStreamer creates a streamer. With concurrent set the next batch is
// fetched while the previous one is encoded.
func NewStreamer(concurrent bool) *Streamer {
	return &Streamer{concurrent: concurrent}
}

// StreamResultSet binds b to the result set r is positioned on and encodes
// every batch. The encoder is flushed but not closed. r is left positioned
// on the exhausted result set, call MoreResults to continue.
func (s *Streamer) StreamResultSet(ctx context.Context, r *lifecycle.Result, b *fetch.Builder, encoder BatchEncoder) (*ExportResult, error) {
	start := time.Now()

	if err := r.PromoteToReader(b); err != nil {
		return nil, fmt.Errorf("bind fetch buffers: %w", err)
	}
	if s.concurrent {
		if err := r.IntoConcurrent(); err != nil {
			return nil, fmt.Errorf("start prefetching: %w", err)
		}
	}

	schema, err := r.Schema()
	if err != nil {
		return nil, fmt.Errorf("describe result set: %w", err)
	}
	if err := encoder.WriteSchema(schema); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	res := &ExportResult{}
	// Without a result set there is nothing to fetch.
	for r.State() != lifecycle.StateIdle {
		// Stop if context cancelled
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		rec, err := r.NextBatch()
		if err != nil {
			return nil, fmt.Errorf("fetch batch: %w", err)
		}
		if rec == nil {
			break
		}
		err = encoder.WriteBatch(rec)
		rows := rec.NumRows()
		rec.Release()
		if err != nil {
			return nil, fmt.Errorf("encode batch: %w", err)
		}
		res.RowsProcessed += rows
		res.Batches++
		slog.Debug("Batch exported", "rows", rows, "total", res.RowsProcessed)
	}

	if err := encoder.Flush(); err != nil {
		return nil, fmt.Errorf("flush encoder: %w", err)
	}
	res.Duration = time.Since(start)
	return res, nil
}
