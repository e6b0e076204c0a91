package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the relay
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Health        HealthConfig        `yaml:"health"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// EngineConfig holds the engine endpoint and the retry policy shared by
// business calls.
type EngineConfig struct {
	BaseURL               string  `yaml:"base_url"`
	MaxAttempts           int     `yaml:"max_attempts"`
	BaseDelayMillis       int     `yaml:"base_delay_ms"`
	BackoffMultiplier     float64 `yaml:"backoff_multiplier"`
	AttemptTimeoutSeconds int     `yaml:"attempt_timeout_seconds"`
	NotificationsPath     string  `yaml:"notifications_path"`
}

// BaseDelay returns the first backoff delay as a duration
func (c EngineConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMillis) * time.Millisecond
}

// AttemptTimeout returns the per-attempt timeout as a duration
func (c EngineConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}

// HealthConfig holds engine health probing configuration
type HealthConfig struct {
	Path                string `yaml:"path"`
	ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds"`
	IntervalSeconds     int    `yaml:"interval_seconds"`
	// Shared enables cross-replica probe serialization through Redis.
	Shared bool `yaml:"shared"`
}

// ProbeTimeout returns the probe timeout as a duration
func (c HealthConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// Interval returns the probing interval as a duration
func (c HealthConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RealtimeConfig holds tenant event bus transport settings
type RealtimeConfig struct {
	BufferSize       int    `yaml:"buffer_size"`
	KeepaliveSeconds int    `yaml:"keepalive_seconds"`
	PGChannel        string `yaml:"pg_channel"`
	RedisChannel     string `yaml:"redis_channel"`
	EnablePGRelay    bool   `yaml:"enable_pg_relay"`
	EnableRedisRelay bool   `yaml:"enable_redis_relay"`
}

// Keepalive returns the SSE keepalive interval as a duration
func (c RealtimeConfig) Keepalive() time.Duration {
	return time.Duration(c.KeepaliveSeconds) * time.Second
}

// NotificationsConfig holds checkpoint tracker settings
type NotificationsConfig struct {
	// Store is "memory" or "redis".
	Store             string            `yaml:"store"`
	CheckpointTTLDays int               `yaml:"checkpoint_ttl_days"`
	KeyPrefix         string            `yaml:"key_prefix"`
	Templates         map[string]string `yaml:"templates"`
}

// CheckpointTTL returns how long a stored checkpoint survives without being acknowledged again
func (c NotificationsConfig) CheckpointTTL() time.Duration {
	return time.Duration(c.CheckpointTTLDays) * 24 * time.Hour
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig holds the connection string used by the pg_notify relay
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true)
func (c LoggingConfig) Redact() bool {
	if c.RedactPII == nil {
		return true
	}
	return *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Engine.BaseURL == "" {
		cfg.Engine.BaseURL = "http://localhost:9090"
	}
	if cfg.Engine.MaxAttempts == 0 {
		cfg.Engine.MaxAttempts = 3
	}
	if cfg.Engine.BaseDelayMillis == 0 {
		cfg.Engine.BaseDelayMillis = 1000
	}
	if cfg.Engine.BackoffMultiplier == 0 {
		cfg.Engine.BackoffMultiplier = 2
	}
	if cfg.Engine.AttemptTimeoutSeconds == 0 {
		cfg.Engine.AttemptTimeoutSeconds = 10
	}
	if cfg.Engine.NotificationsPath == "" {
		cfg.Engine.NotificationsPath = "/api/notifications"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/health"
	}
	if cfg.Health.ProbeTimeoutSeconds == 0 {
		cfg.Health.ProbeTimeoutSeconds = 3
	}
	if cfg.Health.IntervalSeconds == 0 {
		cfg.Health.IntervalSeconds = 15
	}
	if cfg.Realtime.BufferSize == 0 {
		cfg.Realtime.BufferSize = 64
	}
	if cfg.Realtime.KeepaliveSeconds == 0 {
		cfg.Realtime.KeepaliveSeconds = 25
	}
	if cfg.Realtime.PGChannel == "" {
		cfg.Realtime.PGChannel = "tenant_events"
	}
	if cfg.Realtime.RedisChannel == "" {
		cfg.Realtime.RedisChannel = "tenant_events"
	}
	if cfg.Notifications.Store == "" {
		cfg.Notifications.Store = "memory"
	}
	if cfg.Notifications.KeyPrefix == "" {
		cfg.Notifications.KeyPrefix = "notifications:checkpoint:"
	}
	if cfg.Notifications.CheckpointTTLDays == 0 {
		cfg.Notifications.CheckpointTTLDays = 90
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENGINE_BASE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("ENGINE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxAttempts = n
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}

	return cfg, nil
}
