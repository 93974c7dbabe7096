package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider stores exports below a base directory.
type LocalProvider struct {
	basePath string
}

func NewLocalProvider(basePath string) *LocalProvider {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		slog.Error("Failed to ensure local storage directory exists", "path", basePath, "error", err)
	}
	return &LocalProvider{
		basePath: basePath,
	}
}

// path resolves key below the base directory. Keys escaping it are rejected.
func (p *LocalProvider) path(key string) (string, error) {
	fullPath := filepath.Join(p.basePath, key)
	rel, err := filepath.Rel(p.basePath, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q is outside of %s", key, p.basePath)
	}
	return fullPath, nil
}

func (p *LocalProvider) StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	errChan := make(chan error, 1)
	fail := func(err error) (io.WriteCloser, <-chan error) {
		errChan <- err
		close(errChan)
		return nil, errChan
	}

	fullPath, err := p.path(key)
	if err != nil {
		return fail(err)
	}

	// Ensure subdirectories exist if key contains them
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create directory %s: %w", dir, err))
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fail(fmt.Errorf("failed to create file %s: %w", fullPath, err))
	}

	return &localWriter{
		f:       f,
		errChan: errChan,
		path:    fullPath,
	}, errChan
}

func (p *LocalProvider) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := p.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

func (p *LocalProvider) GetDownloadURL(key string) string {
	fullPath := filepath.Join(p.basePath, key)
	abs, _ := filepath.Abs(fullPath)
	return fmt.Sprintf("file://%s", abs)
}

// localWriter reports the result of the write on errChan when closed.
type localWriter struct {
	f       *os.File
	errChan chan error
	path    string
	closed  bool
}

func (w *localWriter) Write(p []byte) (n int, err error) {
	return w.f.Write(p)
}

func (w *localWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.f.Close()
	if err != nil {
		w.errChan <- err
	} else {
		slog.Info("Local file write completed", "path", w.path)
		w.errChan <- nil
	}
	close(w.errChan)
	return err
}
