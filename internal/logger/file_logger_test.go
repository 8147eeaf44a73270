package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info").With("risk")

	log.Debug("hidden %d", 1)
	log.Trade("BUY %s", "AAPL")
	log.LogError("check failed", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "trade", entry["kind"])
	assert.Equal(t, "risk", entry["component"])
	assert.Equal(t, "BUY AAPL", entry["message"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	log, err := NewFileLogger(dir, "tradeguard", "info")
	require.NoError(t, err)

	log.Info("hello")
	path := log.GetLogPath()
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNilAndNopLoggers(t *testing.T) {
	var nilLogger *Logger
	assert.NotPanics(t, func() {
		nilLogger.Info("x")
		nilLogger.Critical("x")
		Nop().With("bracket").Error("x")
	})
}
