package gate_race

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerDisabled(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Enabled: true, Level: "loud"})
	assert.Error(t, err)
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "race.log")
	logger, err := NewLogger(LogConfig{Enabled: true, Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info("filtered out")
	logger.Warn("gate lost")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"gate lost"`)
	assert.Contains(t, string(data), `"run_id":`)
	assert.NotContains(t, string(data), "filtered out")
}
