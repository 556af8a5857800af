// internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/instaflow/internal/config"
)

// memSink is an in-memory zapcore.WriteSyncer for capturing output.
type memSink struct {
	strings.Builder
}

func (s *memSink) Sync() error { return nil }

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "instaflow-test",
	}, sink)

	GetLogger().Info("hello", zap.String("key", "value"))

	line := strings.TrimSpace(sink.String())
	require.NotEmpty(t, line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "instaflow-test", entry["logger"])
}

func TestInitializeHonorsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, sink)

	GetLogger().Info("suppressed")
	GetLogger().Warn("emitted")

	out := sink.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "emitted")
}

func TestInitializeOnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memSink{}
	second := &memSink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)

	GetLogger().Info("routed to the first sink")

	assert.Contains(t, first.String(), "routed to the first sink")
	assert.Empty(t, second.String())
}

func TestFileSinkWritesJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "instaflow.log")
	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:   "info",
		Format:  "console",
		LogFile: logFile,
		MaxSize: 1,
	}, sink)

	GetLogger().Info("persisted entry")
	Sync()

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry))
	assert.Equal(t, "persisted entry", entry["msg"])
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	// No Initialize call: a usable fallback logger must still come back.
	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Debug("fallback logger is safe to use")
}
