// Package logging installs the process wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// LevelTrace is below debug and enables the chattiest output.
const LevelTrace = slog.LevelDebug - 4

// ErrAlreadyInitialized is returned by Setup after the first successful call.
var ErrAlreadyInitialized = errors.New("logging is already initialized")

var (
	mu          sync.Mutex
	initialized bool
)

// LevelFromVerbosity maps 0 error, 1 warn, 2 info, 3 debug and 4 or more
// trace.
func LevelFromVerbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	case v == 3:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// ParseLevel accepts level names as well as "trace".
func ParseLevel(s string) (slog.Level, error) {
	if strings.EqualFold(strings.TrimSpace(s), "trace") {
		return LevelTrace, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrapf(err, "parse log level %q", s)
	}
	return level, nil
}

// Setup makes a text or JSON handler writing to w the default logger. It can
// be called once per process.
func Setup(level slog.Level, format string, w io.Writer) error {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return ErrAlreadyInitialized
	}

	logger := slog.New(NewHandler(level, format, w))
	slog.SetDefault(logger)
	initialized = true
	return nil
}

// NewHandler builds the handler Setup installs.
func NewHandler(level slog.Level, format string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// SetupStderr installs a text logger on standard error with the level of
// LevelFromVerbosity.
func SetupStderr(verbosity int) error {
	return Setup(LevelFromVerbosity(verbosity), "text", os.Stderr)
}
