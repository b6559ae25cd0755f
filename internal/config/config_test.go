package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "database_url: ${TEST_DATABASE_URL}",
			envVars: map[string]string{
				"TEST_DATABASE_URL": "postgres://db/trades",
			},
			expected: "database_url: postgres://db/trades",
		},
		{
			name:  "expand multiple env vars",
			input: "store_mode: ${STORE_MODE}\ndatabase_path: ${DB_PATH}",
			envVars: map[string]string{
				"STORE_MODE": "sqlite",
				"DB_PATH":    "/var/lib/shops.db",
			},
			expected: "store_mode: sqlite\ndatabase_path: /var/lib/shops.db",
		},
		{
			name:     "missing env var returns empty string",
			input:    "database_url: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "database_url: ",
		},
		{
			name:     "no env vars",
			input:    "log_level: INFO",
			envVars:  map[string]string{},
			expected: "log_level: INFO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  store_mode: postgres
  database_url: "${TEST_BARTERSHOPS_DB}"

trading:
  session_ttl: 45s
  delete_confirm_timeout: 5s
  block_initiate_when_degraded: true
  player_inventory_slots: 27

economy:
  tax_rate: 0.1
  volume_discounts:
    - threshold: 500
      multiplier: 0.5

system:
  log_level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TEST_BARTERSHOPS_DB", "postgres://shops:pw@localhost/trades")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.App.StoreMode)
	assert.Equal(t, Secret("postgres://shops:pw@localhost/trades"), cfg.App.DatabaseURL)
	assert.Equal(t, 45*time.Second, cfg.Trading.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.Trading.DeleteConfirmTimeout)
	assert.True(t, cfg.Trading.BlockInitiateWhenDegraded)
	assert.Equal(t, 27, cfg.Trading.PlayerInventorySlots)
	assert.Equal(t, 0.1, cfg.Economy.TaxRate)
	assert.Equal(t, []VolumeDiscountConfig{{Threshold: 500, Multiplier: 0.5}}, cfg.Economy.VolumeDiscounts)
	assert.Equal(t, "DEBUG", cfg.System.LogLevel)

	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Trading.SweepInterval)
	assert.Equal(t, 64, cfg.Trading.DefaultMaxStack)
	assert.Equal(t, 2304, cfg.Trading.MaxTradeUnits)
	assert.Equal(t, 3, cfg.Fallback.MaxFailures)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  store_mode: redis
trading:
  session_ttl: 0s
system:
  log_level: CHATTY
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.store_mode")
	assert.Contains(t, err.Error(), "trading.session_ttl")
	assert.Contains(t, err.Error(), "system.log_level")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"sqlite without path", func(c *Config) { c.App.StoreMode = "sqlite"; c.App.DatabasePath = "" }, "app.database_path"},
		{"postgres without url", func(c *Config) { c.App.StoreMode = "postgres" }, "app.database_url"},
		{"negative cooldown", func(c *Config) { c.Trading.PurchaseCooldown = -time.Second }, "trading.purchase_cooldown"},
		{"oversized stack", func(c *Config) { c.Trading.DefaultMaxStack = 65 }, "trading.default_max_stack"},
		{"zero trade units", func(c *Config) { c.Trading.MaxTradeUnits = 0 }, "trading.max_trade_units"},
		{"tax above one", func(c *Config) { c.Economy.TaxRate = 1.5 }, "economy.tax_rate"},
		{"bad discount", func(c *Config) {
			c.Economy.VolumeDiscounts = []VolumeDiscountConfig{{Threshold: 100, Multiplier: 2}}
		}, "economy.volume_discounts[0].multiplier"},
		{"zero failures", func(c *Config) { c.Fallback.MaxFailures = 0 }, "fallback.max_failures"},
		{"inverted backoff", func(c *Config) { c.Persistence.RetryBackoffMax = time.Millisecond }, "persistence.retry_backoff_max"},
		{"empty owner queue", func(c *Config) { c.Concurrency.OwnerQueueSize = 0 }, "concurrency.owner_queue_size"},
		{"metrics port", func(c *Config) { c.Telemetry.MetricsPort = 0 }, "telemetry.metrics_port"},
		{"webhook scheme", func(c *Config) { c.Alerts.SlackWebhookURL = "ftp://hooks" }, "alerts.slack_webhook_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.StoreMode = "postgres"
	cfg.App.DatabaseURL = Secret("postgres://shops:my_super_secret_pw@db/trades")
	cfg.Alerts.SlackWebhookURL = Secret("https://hooks.slack.com/services/T000/B000/webhooktoken")

	output := cfg.String()

	assert.Contains(t, output, "[REDACTED]")
	assert.Contains(t, output, "store_mode: postgres")
	assert.NotContains(t, output, "my_super_secret_pw")
	assert.NotContains(t, output, "postgres://")
	assert.NotContains(t, output, "webhooktoken")
}
