package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatewarden/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Purgatory   PurgatoryConfig   `yaml:"purgatory"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	XP          XPConfig          `yaml:"xp"`
	Ranks       RanksConfig       `yaml:"ranks"`
	Sync        SyncConfig        `yaml:"sync"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	RankSync    RankSyncConfig    `yaml:"rank_sync"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	DenyMessage  string        `yaml:"deny_message"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// PurgatoryConfig holds provisional session configuration
type PurgatoryConfig struct {
	SessionTimeout     time.Duration `yaml:"session_timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
	EscalationCooldown time.Duration `yaml:"escalation_cooldown"`
}

// WindowLimits holds the per-window event ceilings
type WindowLimits struct {
	PerMinute int64 `yaml:"per_minute"`
	PerHour   int64 `yaml:"per_hour"`
	PerDay    int64 `yaml:"per_day"`
}

// RateLimitConfig holds event rate limiting configuration. Overrides replace
// the default window ceilings for specific event types.
type RateLimitConfig struct {
	Cooldown  time.Duration           `yaml:"cooldown"`
	Defaults  WindowLimits            `yaml:"defaults"`
	Overrides map[string]WindowLimits `yaml:"overrides"`
}

// LimitsFor returns the window ceilings for an event type
func (c *RateLimitConfig) LimitsFor(eventType domain.EventType) WindowLimits {
	if limits, ok := c.Overrides[string(eventType)]; ok {
		return limits
	}
	return c.Defaults
}

// CatalogEntry describes one achievement in the XP catalog
type CatalogEntry struct {
	BaseXP     int    `yaml:"base_xp"`
	Difficulty string `yaml:"difficulty"`
	Terralith  bool   `yaml:"terralith"`
	Hardcore   bool   `yaml:"hardcore"`
}

// XPConfig holds XP calculation configuration
type XPConfig struct {
	Modifiers      map[string]float64      `yaml:"modifiers"`
	Difficulty     map[string]float64      `yaml:"difficulty"`
	TerralithBonus float64                 `yaml:"terralith_bonus"`
	HardcoreBonus  float64                 `yaml:"hardcore_bonus"`
	Catalog        map[string]CatalogEntry `yaml:"catalog"`
}

// RanksConfig holds rank ladder configuration. Requirements grow linearly by
// the configured step per ladder position; the first position requires zero.
type RanksConfig struct {
	PlaytimeStepMinutes int64    `yaml:"playtime_step_minutes"`
	AchievementStep     int64    `yaml:"achievement_step"`
	Titles              []string `yaml:"titles"`
}

// SyncConfig holds leaderboard reconciliation worker configuration
type SyncConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Enabled   bool          `yaml:"enabled"`
}

// CleanupConfig holds the session cleanup worker configuration
type CleanupConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// LeaderboardConfig holds leaderboard query limits
type LeaderboardConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// RankSyncConfig holds the optional rank-sync webhook configuration
type RankSyncConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.DenyMessage == "" {
		c.Server.DenyMessage = "You are not whitelisted. Link your account on Discord to join."
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "gameplay-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "gatewarden-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	// Purgatory defaults
	if c.Purgatory.SessionTimeout == 0 {
		c.Purgatory.SessionTimeout = 10 * time.Minute
	}
	if c.Purgatory.MaxAttempts == 0 {
		c.Purgatory.MaxAttempts = 5
	}
	if c.Purgatory.EscalationCooldown == 0 {
		c.Purgatory.EscalationCooldown = 30 * time.Minute
	}

	// Rate limit defaults
	if c.RateLimit.Cooldown == 0 {
		c.RateLimit.Cooldown = 5 * time.Second
	}
	if c.RateLimit.Defaults.PerMinute == 0 {
		c.RateLimit.Defaults.PerMinute = 10
	}
	if c.RateLimit.Defaults.PerHour == 0 {
		c.RateLimit.Defaults.PerHour = 120
	}
	if c.RateLimit.Defaults.PerDay == 0 {
		c.RateLimit.Defaults.PerDay = 1000
	}

	// XP defaults
	if c.XP.Modifiers == nil {
		c.XP.Modifiers = map[string]float64{
			string(domain.EventAdvancement): 1.0,
			string(domain.EventPlaytime):    1.0,
			string(domain.EventKill):        0.5,
			string(domain.EventBreakBlock):  0.1,
			string(domain.EventPlaceBlock):  0.1,
			string(domain.EventCraft):       0.3,
			string(domain.EventEnchant):     0.8,
			string(domain.EventTrade):       0.4,
			string(domain.EventFish):        0.6,
			string(domain.EventMine):        0.2,
		}
	}
	if c.XP.Difficulty == nil {
		c.XP.Difficulty = map[string]float64{
			"easy":   1.0,
			"medium": 1.25,
			"hard":   1.5,
			"insane": 2.0,
		}
	}
	if c.XP.TerralithBonus == 0 {
		c.XP.TerralithBonus = 0.1
	}
	if c.XP.HardcoreBonus == 0 {
		c.XP.HardcoreBonus = 0.5
	}

	// Rank ladder defaults
	if c.Ranks.PlaytimeStepMinutes == 0 {
		c.Ranks.PlaytimeStepMinutes = 90
	}
	if c.Ranks.AchievementStep == 0 {
		c.Ranks.AchievementStep = 2
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 30 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 1000
	}

	// Cleanup defaults
	if c.Cleanup.Interval == 0 {
		c.Cleanup.Interval = 1 * time.Minute
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 100
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 1000
	}

	// Rank sync defaults
	if c.RankSync.Timeout == 0 {
		c.RankSync.Timeout = 5 * time.Second
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	cfg.Cleanup.Enabled = true
	return cfg
}
