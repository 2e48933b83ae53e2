package config

import "time"

// SyncAgent definition sync_agent YAML structure
type SyncAgent struct {
	Port        string `mapstructure:"port"`
	WorkspaceID string `mapstructure:"workspace_id"`
	UserID      string `mapstructure:"user_id"`
	Debug       bool   `mapstructure:"debug"`

	PostgreSQL DatabaseConfig   `mapstructure:"pg"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	ChangeFeed ChangeFeedConfig `mapstructure:"change_feed"`
	Engine     EngineConfig     `mapstructure:"engine"`
}

// ChangeFeedConfig definition which transport delivers row changes
type ChangeFeedConfig struct {
	// Driver postgres (LISTEN/NOTIFY) or kafka (CDC topic)
	Driver string `mapstructure:"driver"`
}

// EngineConfig definition message sync engine tunables
type EngineConfig struct {
	TypingDebounce        time.Duration `mapstructure:"typing_debounce"`
	OptimisticMatchWindow time.Duration `mapstructure:"optimistic_match_window"`
	GroupingGap           time.Duration `mapstructure:"grouping_gap"`
	HeartbeatInterval     time.Duration `mapstructure:"heartbeat_interval"`
	PresenceTTL           time.Duration `mapstructure:"presence_ttl"`
	ReconnectMaxElapsed   time.Duration `mapstructure:"reconnect_max_elapsed"`
	HistoryPageSize       int           `mapstructure:"history_page_size"`
	UserCacheTTL          time.Duration `mapstructure:"user_cache_ttl"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// KafkaConfig definition kafka CDC setting
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// DefaultEngine engine tunables used when the YAML leaves them out
func DefaultEngine() EngineConfig {
	return EngineConfig{
		TypingDebounce:        time.Second,
		OptimisticMatchWindow: 15 * time.Second,
		GroupingGap:           5 * time.Minute,
		HeartbeatInterval:     20 * time.Second,
		PresenceTTL:           60 * time.Second,
		ReconnectMaxElapsed:   2 * time.Minute,
		HistoryPageSize:       50,
		UserCacheTTL:          10 * time.Minute,
	}
}

// WithDefaults fill zero values from DefaultEngine
func (e EngineConfig) WithDefaults() EngineConfig {
	d := DefaultEngine()
	if e.TypingDebounce <= 0 {
		e.TypingDebounce = d.TypingDebounce
	}
	if e.OptimisticMatchWindow <= 0 {
		e.OptimisticMatchWindow = d.OptimisticMatchWindow
	}
	if e.GroupingGap <= 0 {
		e.GroupingGap = d.GroupingGap
	}
	if e.HeartbeatInterval <= 0 {
		e.HeartbeatInterval = d.HeartbeatInterval
	}
	if e.PresenceTTL <= 0 {
		e.PresenceTTL = d.PresenceTTL
	}
	if e.ReconnectMaxElapsed <= 0 {
		e.ReconnectMaxElapsed = d.ReconnectMaxElapsed
	}
	if e.HistoryPageSize <= 0 {
		e.HistoryPageSize = d.HistoryPageSize
	}
	if e.UserCacheTTL <= 0 {
		e.UserCacheTTL = d.UserCacheTTL
	}
	return e
}
