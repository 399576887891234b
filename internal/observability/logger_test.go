// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/aevum/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferSink is an in-memory WriteSyncer so tests never touch the real stdout.
type bufferSink struct {
	bytes.Buffer
}

func (b *bufferSink) Sync() error { return nil }

func newSink(t *testing.T) *bufferSink {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	return &bufferSink{}
}

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		sink := newSink(t)
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "aevum",
			Colors:      config.ColorConfig{Info: "green"},
		}, sink)

		GetLogger().Info("generation scored")

		output := sink.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "generation scored")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "aevum.")
	})

	t.Run("json logger", func(t *testing.T) {
		sink := newSink(t)
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, sink)

		GetLogger().Warn("score below threshold", zap.Float64("score", 12.5))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(sink.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "score below threshold", entry["msg"])
		assert.Equal(t, 12.5, entry["score"])
	})

	t.Run("level filtering", func(t *testing.T) {
		sink := newSink(t)
		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, sink)

		GetLogger().Info("hidden")
		assert.Empty(t, sink.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		sink := newSink(t)
		Initialize(config.LoggerConfig{Level: "loud", Format: "json"}, sink)

		GetLogger().Debug("hidden")
		GetLogger().Info("visible")
		assert.NotContains(t, sink.String(), "hidden")
		assert.Contains(t, sink.String(), "visible")
	})

	t.Run("writes to a rotated log file", func(t *testing.T) {
		sink := newSink(t)
		logFile := filepath.Join(t.TempDir(), "logs", "aevum.log")
		Initialize(config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1}, sink)

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
		// The file sink is always JSON.
		firstLine := strings.SplitN(string(content), "\n", 2)[0]
		assert.True(t, json.Valid([]byte(firstLine)))
	})

	t.Run("unusable log directory is reported", func(t *testing.T) {
		sink := newSink(t)
		blocker := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))
		logFile := filepath.Join(blocker, "aevum.log")
		Initialize(config.LoggerConfig{Level: "info", Format: "console", LogFile: logFile}, sink)

		assert.Contains(t, sink.String(), "Log file disabled")
		assert.Contains(t, sink.String(), "failed to create log directory")

		GetLogger().Info("still logging")
		assert.Contains(t, sink.String(), "still logging")
	})

	t.Run("only initializes once", func(t *testing.T) {
		sink := newSink(t)
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, sink)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Equal(t, first, second)
		second.Info("test")
		assert.Contains(t, sink.String(), "First")
		assert.NotContains(t, sink.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the stored logger", func(t *testing.T) {
		sink := newSink(t)
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}, sink)
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
