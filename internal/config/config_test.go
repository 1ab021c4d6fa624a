package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
telegram:
  bot_token: abc
database:
  path: `+filepath.Join(dir, "db", "bot.db")+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Telegram.BotToken)
	assert.Equal(t, StorageSQLite, cfg.Storage.Reminders)
	assert.False(t, cfg.UsesRedis())
	assert.Equal(t, 60*time.Second, cfg.ScanInterval())
	assert.Equal(t, 10*time.Second, cfg.DeliveryTimeout())
	assert.Equal(t, 10, cfg.MaxConcurrentDeliveries())
	assert.Equal(t, 3, cfg.MaxRetries())
	assert.Nil(t, cfg.RetryDelays())
	assert.Equal(t, 90*24*time.Hour, cfg.TimerRetention())
	assert.Equal(t, "0 3 * * *", cfg.Timers.CleanupSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "from-env")
	t.Setenv("TEST_REDIS", "localhost:6379")
	path := writeConfig(t, `
telegram:
  bot_token: ${TEST_BOT_TOKEN}
database:
  path: `+filepath.Join(t.TempDir(), "bot.db")+`
storage:
  reminders: redis
redis:
  address: ${TEST_REDIS}
reminders:
  scan_interval_seconds: 5
  max_retries: 0
  retry_delays_seconds: [2, 4]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 5*time.Second, cfg.ScanInterval())
	assert.Equal(t, 0, cfg.MaxRetries())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, cfg.RetryDelays())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", "database:\n  path: x.db\n"},
		{"redis without address", "telegram:\n  bot_token: t\nstorage:\n  reminders: redis\n"},
		{"unknown storage", "telegram:\n  bot_token: t\nstorage:\n  reminders: mongo\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
