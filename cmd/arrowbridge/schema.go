package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sql-arrow-bridge/internal/lifecycle"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <query>",
	Short: "prints the Arrow schema of every result set",
	Long: `
Executes the query and prints the Arrow schema each result set would be fetched with,
without fetching any rows.
`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := connect(ctx)
	if err != nil {
		return err
	}

	result := lifecycle.New(resultOptions()...)
	defer result.Close()
	if err := result.SetConnection(session); err != nil {
		return err
	}
	if err := result.PromoteToCursor(ctx, args[0], queryParams(), cfg.QueryTimeout); err != nil {
		return err
	}
	if result.State() == lifecycle.StateIdle {
		fmt.Fprintln(cmd.OutOrStdout(), "query produced no result set")
		return nil
	}

	for i := 0; ; i++ {
		schema, err := result.Schema()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "result set %d (%s):\n", i, result.DBMSName())
		for _, f := range schema.Fields() {
			nullable := ""
			if f.Nullable {
				nullable = " (nullable)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s%s\n", f.Name, f.Type, nullable)
		}

		more, err := result.MoreResults()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}
