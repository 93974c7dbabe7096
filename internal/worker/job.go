package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/exporter"
)

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// ExportJob represents a single unit of work for the export service. Every
// result set of the query ends up in its own file.
type ExportJob struct {
	// ID is the unique UUID v4 for the job.
	ID string
	// Query is executed once, Params are bound to its placeholders.
	Query  string
	Params []driver.Param
	// Format is the requested output format, see exporter.Formats.
	Format string
	// Timestamps for job lifecycle tracking.
	Submitted time.Time
	Started   time.Time
	Finished  time.Time
	// Status tracks the current state (PENDING, PROCESSING, COMPLETED, FAILED).
	Status JobStatus
	// Error holds any error encountered during processing.
	Error error
	// Stats has one entry per exported result set.
	Stats []*exporter.ExportResult
	// Keys are the storage keys of the written files, one per result set.
	Keys []string

	// Context manages the lifecycle/cancellation of the job.
	Ctx    context.Context
	Cancel context.CancelFunc

	done chan struct{}
}

func NewExportJob(query, format string, timeout time.Duration, params ...driver.Param) *ExportJob {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	if format == "" {
		format = "csv"
	}
	return &ExportJob{
		ID:        uuid.New().String(),
		Query:     query,
		Params:    params,
		Format:    format,
		Submitted: time.Now(),
		Status:    StatusPending,
		Ctx:       ctx,
		Cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Done is closed once the job completed or failed.
func (j *ExportJob) Done() <-chan struct{} {
	return j.done
}

// Rows is the total over all result sets.
func (j *ExportJob) Rows() int64 {
	var n int64
	for _, s := range j.Stats {
		n += s.RowsProcessed
	}
	return n
}
