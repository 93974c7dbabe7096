package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sql-arrow-bridge/internal/exporter"
	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/security"
	"sql-arrow-bridge/internal/storage"
	"sql-arrow-bridge/internal/worker"
)

var (
	exportFormat string
	readOnly     bool
)

var exportCmd = &cobra.Command{
	Use:   "export <query> [query...]",
	Short: "exports every result set of the queries",
	Long: `
Runs each query as a job of the worker pool. Every result set of a query is written to
its own file below exports/ on the configured storage (STORAGE_TYPE local or s3).
Parameters given with --param are bound to every query.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", fmt.Sprintf("output format, one of %v (default OUTPUT_FORMAT)", exporter.Formats))
	exportCmd.Flags().BoolVar(&readOnly, "read-only", false, "reject anything but a single SELECT per query")
}

func runExport(cmd *cobra.Command, args []string) error {
	format := cfg.OutputFormat
	if exportFormat != "" {
		format = exportFormat
	}
	if !exporter.Supported(format) {
		return fmt.Errorf("unknown export format %q", format)
	}
	if readOnly {
		for _, query := range args {
			if err := security.ValidateReadOnly(query); err != nil {
				return err
			}
		}
	}
	// Fails early on settings Build would reject later.
	if _, err := cfg.FetchBuilder(); err != nil {
		return err
	}

	store, err := storage.New(cfg)
	if err != nil {
		return err
	}

	pool := worker.NewPool(connect, store, worker.Options{
		Workers:           cfg.WorkerCount,
		MaxDBConcurrency:  cfg.MaxDBConcurrency,
		NewBuilder:        func() (*fetch.Builder, error) { return cfg.FetchBuilder() },
		FetchConcurrently: cfg.FetchConcurrently,
		QueryTimeout:      cfg.QueryTimeout,
		UseGzip:           cfg.Compression,
		ResultOptions:     resultOptions(),
	})
	pool.Start()
	defer pool.Stop()

	jobs := make([]*worker.ExportJob, 0, len(args))
	for _, query := range args {
		job := worker.NewExportJob(query, format, cfg.DefaultTimeout, queryParams()...)
		if !pool.Submit(job) {
			job.Cancel()
			return fmt.Errorf("job queue is full")
		}
		jobs = append(jobs, job)
	}

	var failed int
	for _, job := range jobs {
		select {
		case <-job.Done():
		case <-cmd.Context().Done():
			job.Cancel()
			<-job.Done()
		}
		if job.Error != nil {
			failed++
			continue
		}
		for i, key := range job.Keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\t%s\n", job.ID, job.Stats[i].RowsProcessed, store.GetDownloadURL(key))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d exports failed", failed, len(jobs))
	}
	slog.Info("Exports finished", "jobs", len(jobs))
	return nil
}
