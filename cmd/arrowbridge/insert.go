package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/spf13/cobra"

	"sql-arrow-bridge/internal/writer"
)

var insertCmd = &cobra.Command{
	Use:   "insert <table> [file]",
	Short: "inserts an Arrow IPC stream into a table",
	Long: `
Reads an Arrow IPC stream from file, or standard input if omitted, and inserts its rows
into table, INSERT_CHUNK_SIZE rows per statement. Column names must match the field
names of the stream.
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInsert,
}

func runInsert(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 2 {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	rdr, err := ipc.NewReader(in)
	if err != nil {
		return fmt.Errorf("read arrow stream: %w", err)
	}
	defer rdr.Release()

	ctx := cmd.Context()
	session, err := connect(ctx)
	if err != nil {
		return err
	}
	w, err := writer.New(session, args[0], rdr.Schema(), cfg.InsertChunkSize)
	if err != nil {
		return err
	}
	defer w.Close()

	var rows int64
	for rdr.Next() {
		rec := rdr.Record()
		if err := w.WriteBatch(ctx, rec); err != nil {
			return err
		}
		rows += rec.NumRows()
	}
	if err := rdr.Err(); err != nil {
		return fmt.Errorf("read arrow stream: %w", err)
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}

	slog.Info("Insert finished", "table", args[0], "rows", rows)
	fmt.Fprintf(cmd.OutOrStdout(), "inserted %d rows into %s\n", rows, args[0])
	return nil
}
