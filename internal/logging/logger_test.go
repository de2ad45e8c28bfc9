package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"firstcontact/internal/config"
)

func TestJSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := build(config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("username", "alice"))
	closeFn()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "alice", entry["username"])
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := build(config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Named("messenger").Debug("waiting")
	closeFn()

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "messenger")
	assert.Contains(t, out, "waiting")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	var buf bytes.Buffer
	logger, closeFn, err := build(config.LoggingConfig{Level: "info", Format: "console", OutputFile: path, MaxSizeMB: 1}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("to both")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to both"`)
	assert.Contains(t, buf.String(), "to both")
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := build(config.LoggingConfig{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	require.Error(t, err)
}
