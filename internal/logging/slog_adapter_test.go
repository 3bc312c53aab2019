package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestSlogHandler(buf *bytes.Buffer) *SlogHandler {
	return &SlogHandler{logger: zerolog.New(buf)}
}

func TestSlogHandlerWritesMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTestSlogHandler(&buf)
	logger := slog.New(h)

	logger.Info("batch started", "batch_id", "20260801_000000", "rows", int64(42))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "batch started", decoded["message"])
	require.Equal(t, "20260801_000000", decoded["batch_id"])
	require.Equal(t, float64(42), decoded["rows"])
}

func TestSlogHandlerWithAttrsPersistsAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	h := newTestSlogHandler(&buf)
	logger := slog.New(h).With("component", "scheduler")

	logger.Warn("tick skipped")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "scheduler", decoded["component"])
}

func TestSlogHandlerWithGroupPrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	h := newTestSlogHandler(&buf)
	logger := slog.New(h).WithGroup("job")

	logger.Error("job failed", "name", "report-daily")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "report-daily", decoded["job.name"])
}

func TestSlogHandlerEnabledRespectsZerologLevel(t *testing.T) {
	h := &SlogHandler{logger: zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel)}
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestNewSlogLoggerReturnsUsableLogger(t *testing.T) {
	logger := NewSlogLogger()
	require.NotNil(t, logger)
}
