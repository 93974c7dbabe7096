package storage

import (
	"context"
	"fmt"
	"io"

	"sql-arrow-bridge/internal/config"
)

// Provider defines the interface for storing exported data.
type Provider interface {
	// StreamToFile returns a WriteCloser. Data written to it is streamed to the storage destination.
	// The key is the relative path/filename for the object.
	// The returned channel receives a single error (or nil) when the storage operation completes.
	StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error)

	// OpenFile opens the stored file for reading.
	OpenFile(ctx context.Context, key string) (io.ReadCloser, error)

	// GetDownloadURL returns a viewable/downloadable URL for the stored item.
	GetDownloadURL(key string) string
}

// New returns the provider selected by cfg.StorageType.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.StorageType {
	case "", "local":
		return NewLocalProvider(cfg.LocalStoragePath), nil
	case "s3":
		client := NewS3Client(cfg.AWSRegion, cfg.S3Endpoint, cfg.S3PathStyle)
		return NewS3Provider(client, cfg.S3Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}
