package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"sql-arrow-bridge/internal/fetch"
)

// Config holds the application configuration loaded from environment variables.
// Keys in a config file use the same names in lower case.
type Config struct {
	// LogLevel is one of trace, debug, info, warn or error.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// DBDriver is the database/sql driver name, or "mongodb".
	DBDriver string `mapstructure:"db_driver"`
	// DBDSN is the connection string in the driver's own syntax.
	DBDSN string `mapstructure:"db_dsn"`
	// DBUser and DBPassword are merged into DBDSN if set.
	DBUser            string        `mapstructure:"db_user"`
	DBPassword        string        `mapstructure:"db_password"`
	LoginTimeout      time.Duration `mapstructure:"login_timeout"`
	ConnectionPooling bool          `mapstructure:"connection_pooling"`

	// BatchSize is the maximum number of rows per fetched batch.
	BatchSize int `mapstructure:"batch_size"`
	// MaxBytesPerBatch caps the fetch buffer memory, 0 is unbounded.
	MaxBytesPerBatch int `mapstructure:"max_bytes_per_batch"`
	// MaxTextSize and MaxBinarySize cap element sizes, 0 is no cap.
	MaxTextSize         int    `mapstructure:"max_text_size"`
	MaxBinarySize       int    `mapstructure:"max_binary_size"`
	FallibleAllocations bool   `mapstructure:"fallible_allocations"`
	FetchConcurrently   bool   `mapstructure:"fetch_concurrently"`
	TextEncoding        string `mapstructure:"text_encoding"`
	// MemoryLimit bounds the Arrow memory of all readers together in bytes, 0 is none.
	MemoryLimit  int64         `mapstructure:"memory_limit"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// StorageType determines where to save exports: "local" or "s3".
	StorageType string `mapstructure:"storage_type"`
	// LocalStoragePath is the directory for local exports.
	LocalStoragePath string `mapstructure:"local_storage_path"`
	// AWSRegion is the AWS region for S3 uploads.
	AWSRegion string `mapstructure:"aws_region"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	// S3Endpoint is an optional custom endpoint (for non-AWS S3 providers like MinIO).
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`

	// WorkerCount is the number of concurrent export jobs allowed.
	WorkerCount int `mapstructure:"worker_count"`
	// MaxDBConcurrency restricts the global number of concurrent DB sessions.
	MaxDBConcurrency int64 `mapstructure:"max_db_concurrency"`
	// DefaultTimeout is the maximum duration for an export job.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// Compression enables Gzip compression for exports.
	Compression  bool   `mapstructure:"compression"`
	OutputFormat string `mapstructure:"output_format"`

	// InsertChunkSize is the number of rows per INSERT statement.
	InsertChunkSize int `mapstructure:"insert_chunk_size"`
}

func Load() *Config {
	return &Config{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		DBDriver:            getEnv("DB_DRIVER", "mysql"),
		DBDSN:               getEnv("DB_DSN", "tcp(localhost:3306)/dbname?parseTime=true"),
		DBUser:              getEnv("DB_USER", ""),
		DBPassword:          getEnv("DB_PASSWORD", ""),
		LoginTimeout:        getEnvDuration("LOGIN_TIMEOUT", 0),
		ConnectionPooling:   getEnvBool("CONNECTION_POOLING", false),
		BatchSize:           getEnvInt("BATCH_SIZE", fetch.DefaultMaxRowsPerBatch),
		MaxBytesPerBatch:    getEnvInt("MAX_BYTES_PER_BATCH", fetch.DefaultMaxBytesPerBatch),
		MaxTextSize:         getEnvInt("MAX_TEXT_SIZE", 0),
		MaxBinarySize:       getEnvInt("MAX_BINARY_SIZE", 0),
		FallibleAllocations: getEnvBool("FALLIBLE_ALLOCATIONS", true),
		FetchConcurrently:   getEnvBool("FETCH_CONCURRENTLY", false),
		TextEncoding:        getEnv("TEXT_ENCODING", "auto"),
		MemoryLimit:         getEnvInt64("MEMORY_LIMIT", 0),
		QueryTimeout:        getEnvDuration("QUERY_TIMEOUT", 0),
		StorageType:         getEnv("STORAGE_TYPE", "local"),
		LocalStoragePath:    getEnv("LOCAL_STORAGE_PATH", "./exports"),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:            getEnv("S3_BUCKET", "my-export-bucket"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3PathStyle:         getEnvBool("S3_PATH_STYLE", false),
		WorkerCount:         getEnvInt("WORKER_COUNT", 5),
		MaxDBConcurrency:    getEnvInt64("MAX_DB_CONCURRENCY", 3),
		DefaultTimeout:      getEnvDuration("DEFAULT_TIMEOUT", 15*time.Minute),
		Compression:         getEnvBool("COMPRESSION", false),
		OutputFormat:        getEnv("OUTPUT_FORMAT", "csv"),
		InsertChunkSize:     getEnvInt("INSERT_CHUNK_SIZE", 1000),
	}
}

// LoadFile reads the environment and then overlays the YAML file at path.
// Keys missing from the file keep their environment value.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// FetchBuilder turns the fetch settings into a policy builder.
func (c *Config) FetchBuilder() (*fetch.Builder, error) {
	encoding, err := fetch.ParseTextEncoding(c.TextEncoding)
	if err != nil {
		return nil, err
	}
	return fetch.NewBuilder().
		WithMaxRowsPerBatch(c.BatchSize).
		WithMaxBytesPerBatch(c.MaxBytesPerBatch).
		WithMaxTextSize(c.MaxTextSize).
		WithMaxBinarySize(c.MaxBinarySize).
		WithFallibleAllocations(c.FallibleAllocations).
		WithTextEncoding(encoding), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
