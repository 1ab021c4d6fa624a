package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Reminder storage backends.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis RedisConfig `yaml:"redis"`

	Storage struct {
		// Reminders selects the pending reminder store: sqlite or redis.
		Reminders string `yaml:"reminders"`
	} `yaml:"storage"`

	Reminders RemindersConfig `yaml:"reminders"`
	Timers    TimersConfig    `yaml:"timers"`
	Backup    BackupConfig    `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
	// UpdateTimeout is the long polling timeout in seconds.
	UpdateTimeout int `yaml:"update_timeout"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type RemindersConfig struct {
	ScanIntervalSeconds    int     `yaml:"scan_interval_seconds"`
	DeliveryTimeoutSeconds int     `yaml:"delivery_timeout_seconds"`
	MaxConcurrent          int     `yaml:"max_concurrent"`
	MaxRetries             *int    `yaml:"max_retries"`
	RetryDelaysSeconds     []int   `yaml:"retry_delays_seconds"`
	RatePerSecond          float64 `yaml:"rate_per_second"`
	RateBurst              int     `yaml:"rate_burst"`
}

type TimersConfig struct {
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the YAML config at path. A .env file next to the binary is loaded
// first so its variables can be referenced as ${VAR} in the YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/remindbot.db"
	}
	if c.Storage.Reminders == "" {
		c.Storage.Reminders = StorageSQLite
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "remindbot"
	}
	if c.Telegram.UpdateTimeout <= 0 {
		c.Telegram.UpdateTimeout = 60
	}
	if c.Timers.CleanupSchedule == "" {
		c.Timers.CleanupSchedule = "0 3 * * *"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 4 * * *"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	switch c.Storage.Reminders {
	case StorageSQLite:
	case StorageRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required when storage.reminders is %q", StorageRedis)
		}
	default:
		return fmt.Errorf("unknown storage.reminders %q", c.Storage.Reminders)
	}
	return nil
}

func (c *Config) ScanInterval() time.Duration {
	if c.Reminders.ScanIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Reminders.ScanIntervalSeconds) * time.Second
}

func (c *Config) DeliveryTimeout() time.Duration {
	if c.Reminders.DeliveryTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Reminders.DeliveryTimeoutSeconds) * time.Second
}

func (c *Config) MaxConcurrentDeliveries() int {
	if c.Reminders.MaxConcurrent <= 0 {
		return 10
	}
	return c.Reminders.MaxConcurrent
}

// MaxRetries returns the retry budget per reminder. Zero disables retries.
func (c *Config) MaxRetries() int {
	if c.Reminders.MaxRetries == nil || *c.Reminders.MaxRetries < 0 {
		return 3
	}
	return *c.Reminders.MaxRetries
}

// RetryDelays returns the configured retry delays, or nil to keep the defaults.
func (c *Config) RetryDelays() []time.Duration {
	if len(c.Reminders.RetryDelaysSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, 0, len(c.Reminders.RetryDelaysSeconds))
	for _, s := range c.Reminders.RetryDelaysSeconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

func (c *Config) TimerRetention() time.Duration {
	if c.Timers.RetentionDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.Timers.RetentionDays) * 24 * time.Hour
}

func (c *Config) UsesRedis() bool {
	return c.Storage.Reminders == StorageRedis
}
