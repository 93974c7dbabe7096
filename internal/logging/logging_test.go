package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromVerbosity(t *testing.T) {
	assert.Equal(t, slog.LevelError, LevelFromVerbosity(0))
	assert.Equal(t, slog.LevelWarn, LevelFromVerbosity(1))
	assert.Equal(t, slog.LevelInfo, LevelFromVerbosity(2))
	assert.Equal(t, slog.LevelDebug, LevelFromVerbosity(3))
	assert.Equal(t, LevelTrace, LevelFromVerbosity(4))
	assert.Equal(t, LevelTrace, LevelFromVerbosity(9))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("TRACE")
	require.NoError(t, err)
	assert.Equal(t, LevelTrace, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.LevelInfo, "json", &buf))
	logger.Info("Batch fetched", "rows", 2)
	assert.Contains(t, buf.String(), `"rows":2`)

	buf.Reset()
	logger = slog.New(NewHandler(slog.LevelWarn, "text", &buf))
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestSetupOnce(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buf bytes.Buffer
	require.NoError(t, Setup(slog.LevelInfo, "json", &buf))
	assert.ErrorIs(t, Setup(slog.LevelInfo, "json", &buf), ErrAlreadyInitialized)
}
