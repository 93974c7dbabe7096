// Command arrowbridge runs queries through the fetch pipeline and exports
// the result sets, or inserts Arrow streams into tables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sql-arrow-bridge/internal/boundary"
	"sql-arrow-bridge/internal/config"
	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/fetch"
	"sql-arrow-bridge/internal/lifecycle"
	"sql-arrow-bridge/internal/logging"
)

var version = "dev"

var (
	cfg        *config.Config
	configPath string
	dsnFlag    string
	driverFlag string
	params     []string
)

var rootCmd = &cobra.Command{
	Use:   "arrowbridge [command]",
	Short: "moves SQL result sets in and out of Arrow",
	Long: `
Runs queries through Arrow fetch buffers and exports every result set as CSV, JSON,
Excel, PDF or Arrow IPC, or inserts Arrow IPC streams into tables.

Settings are read from the environment (and a .env file), optionally overlaid by a
YAML file given with --config. DB_DRIVER and DB_DSN select the data source.
`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overlaying the environment")
	rootCmd.PersistentFlags().StringVar(&driverFlag, "driver", "", "database driver, overrides DB_DRIVER")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "connection string, overrides DB_DSN")
	rootCmd.PersistentFlags().StringArrayVarP(&params, "param", "p", nil, "text parameter bound to the next placeholder, NULL for null")

	rootCmd.AddCommand(exportCmd, schemaCmd, insertCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Load()
	}
	if driverFlag != "" {
		cfg.DBDriver = driverFlag
	}
	if dsnFlag != "" {
		cfg.DBDSN = dsnFlag
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if err := logging.Setup(level, cfg.LogFormat, os.Stderr); err != nil {
		return err
	}

	if cfg.ConnectionPooling {
		if e := boundary.EnableConnectionPooling(); e != nil {
			return e
		}
	}
	return nil
}

// connect opens a session on the configured data source.
func connect(ctx context.Context) (driver.Session, error) {
	session, e := boundary.Connect(ctx, boundary.ConnectOptions{
		DriverName:       cfg.DBDriver,
		ConnectionString: []byte(cfg.DBDSN),
		User:             []byte(cfg.DBUser),
		Password:         []byte(cfg.DBPassword),
		LoginTimeout:     cfg.LoginTimeout,
	})
	if e != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.DBDriver, e)
	}
	return session, nil
}

// resultOptions caps the Arrow memory of all readers if MEMORY_LIMIT is set.
func resultOptions() []lifecycle.Option {
	if cfg.MemoryLimit <= 0 {
		return nil
	}
	return []lifecycle.Option{
		lifecycle.WithAllocator(fetch.NewLimitedAllocator(memory.DefaultAllocator, cfg.MemoryLimit)),
	}
}

func queryParams() []driver.Param {
	out := make([]driver.Param, len(params))
	for i, p := range params {
		if strings.EqualFold(p, "NULL") {
			out[i] = driver.TextParam(nil)
			continue
		}
		out[i] = driver.TextParam([]byte(p))
	}
	return out
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints the version",
	// Does not need the config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "arrowbridge %s\n", version)
	},
}
