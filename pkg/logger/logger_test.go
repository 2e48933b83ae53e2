package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core).With(zap.String("channel_id", "h-1"))

	l.Warn("anomaly", zap.String("message_id", "m-9"))
	l.Debug("applied")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "h-1", entries[0].ContextMap()["channel_id"])
	assert.Equal(t, "m-9", entries[0].ContextMap()["message_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestSetNewNop(t *testing.T) {
	SetNewNop()
	assert.NotNil(t, Log)
	assert.NotPanics(t, func() { Log.Info("dropped") })
}

func TestInitializeWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	l := Initialize("sync_agent", dir)
	l.SetDebugMode(true)
	l.Info("started")
	l.Sync()

	matches, err := filepath.Glob(filepath.Join(dir, "sync_agent_*.log"))
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
}
