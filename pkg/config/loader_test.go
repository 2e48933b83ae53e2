package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
port: "8090"
workspace_id: ws-1
user_id: ${TEST_SYNC_USER}
pg:
  host: localhost
  port: 5432
  user: sync
  password: secret
  database: docs
  retry_count: 3
  retry_interval: 2
redis:
  addr: localhost:6379
  redis_db: 1
change_feed:
  driver: kafka
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic: cdc.public.messages
engine:
  typing_debounce: 1500ms
  grouping_gap: 2m
`

func TestLoadConfig_ExpandsEnvAndDurations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync_agent.yaml"), []byte(sampleYAML), 0o644))
	t.Setenv("TEST_SYNC_USER", "user-42")

	cfg, err := LoadConfig[SyncAgent]("sync_agent", dir)
	require.NoError(t, err)

	assert.Equal(t, "user-42", cfg.UserID)
	assert.Equal(t, "ws-1", cfg.WorkspaceID)
	assert.Equal(t, 5432, cfg.PostgreSQL.Port)
	assert.Equal(t, 1, cfg.Redis.RedisDB)
	assert.Equal(t, "kafka", cfg.ChangeFeed.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.TypingDebounce)
	assert.Equal(t, 2*time.Minute, cfg.Engine.GroupingGap)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig[SyncAgent]("nope", t.TempDir())
	assert.Error(t, err)
}

func TestEngineWithDefaults(t *testing.T) {
	e := EngineConfig{GroupingGap: time.Minute}.WithDefaults()

	assert.Equal(t, time.Minute, e.GroupingGap)
	assert.Equal(t, time.Second, e.TypingDebounce)
	assert.Equal(t, 15*time.Second, e.OptimisticMatchWindow)
	assert.Equal(t, 50, e.HistoryPageSize)
}
