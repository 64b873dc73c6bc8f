package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dzaakk/sliding-rate-limiter/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestJSONHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, config.LogConfig{Level: "warn", Format: "json"}))

	logger.Info("dropped")
	logger.Warn("rate limit exceeded", "client", "c1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rate limit exceeded", entry["msg"])
	assert.Equal(t, "c1", entry["client"])
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limiter.log")
	logger, closer := New(config.LogConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   config.LogFileConfig{Path: path, MaxSizeMB: 1},
	})

	logger.Info("request allowed", "client", "c2")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "request allowed")
	assert.Contains(t, string(data), "client=c2")
}
