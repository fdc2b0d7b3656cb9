package slogutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "human")

	logger.Info("Tick committed", "tick", 42, "state", "Ready")

	output := buf.String()
	for _, want := range []string{"[info]", "Tick committed", " | tick=42", "state=Ready"} {
		assert.Contains(t, output, want)
	}
	assert.Regexp(t, `\n$`, output)
}

func TestHandler_NoAttrs(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "human").Info("plain")

	assert.NotContains(t, buf.String(), "|")
}

func TestHandler_Levels(t *testing.T) {
	tests := []struct {
		logFunc  func(*slog.Logger)
		expected string
	}{
		{func(l *slog.Logger) { l.Debug("debug") }, "[debug]"},
		{func(l *slog.Logger) { l.Info("info") }, "[info]"},
		{func(l *slog.Logger) { l.Warn("warn") }, "[warn]"},
		{func(l *slog.Logger) { l.Error("error") }, "[error]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(NewLogger(&buf, slog.LevelDebug, "human"))
			assert.Contains(t, buf.String(), tt.expected)
		})
	}
}

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, "human")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestHandler_GroupsAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "human").
		With("component", "api").
		WithGroup("request")

	logger.Info("Handled",
		"path", "/views/registers",
		"message", "two words",
		slog.Group("backend", "endpoint", "simulate"),
		"error", errors.New("boom"),
	)

	output := buf.String()
	for _, want := range []string{
		"component=api",
		"request.path=/views/registers",
		`request.message="two words"`,
		"request.backend.endpoint=simulate",
		`request.error="boom"`,
	} {
		assert.Contains(t, output, want)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "json").Info("Snapshot loaded", "objects", 27)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), buf.String())
	assert.Equal(t, "Snapshot loaded", record["msg"])
	assert.Equal(t, float64(27), record["objects"])
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromString(tt.in), tt.in)
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		quiet     bool
		want      slog.Level
	}{
		{0, false, slog.LevelWarn},
		{1, false, slog.LevelInfo},
		{2, false, slog.LevelDebug},
		{5, false, slog.LevelDebug},
		{2, true, LevelSilent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromVerbosity(tt.verbosity, tt.quiet), "verbosity=%d quiet=%v", tt.verbosity, tt.quiet)
	}
}

func TestNewDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
	logger.Error("dropped")
}

func TestTeeHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	logger := slog.New(NewTeeHandler(
		NewHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		NewHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)).With("component", "tick")

	logger.Debug("requesting")
	logger.Warn("stale response")

	assert.Contains(t, debugBuf.String(), "requesting")
	assert.Contains(t, debugBuf.String(), "stale response")
	assert.NotContains(t, warnBuf.String(), "requesting", "warn handler gets no debug")
	assert.Contains(t, warnBuf.String(), "component=tick", "attrs reach every handler")
}
