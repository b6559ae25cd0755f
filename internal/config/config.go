// Package config handles configuration management with validation
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Trading     TradingConfig     `yaml:"trading"`
	Economy     EconomyConfig     `yaml:"economy"`
	Fallback    FallbackConfig    `yaml:"fallback"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Alerts      AlertsConfig      `yaml:"alerts"`
}

// AlertsConfig selects where operator alerts go
type AlertsConfig struct {
	SlackWebhookURL Secret `yaml:"slack_webhook_url"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
	StdoutTraces  bool `yaml:"stdout_traces"`
}

// AppConfig selects where trade records are kept
type AppConfig struct {
	StoreMode    string `yaml:"store_mode" validate:"oneof=memory sqlite postgres"`
	DatabasePath string `yaml:"database_path"` // sqlite only
	DatabaseURL  Secret `yaml:"database_url"`  // postgres only
}

// TradingConfig contains session and shop interaction parameters
type TradingConfig struct {
	SessionTTL                time.Duration `yaml:"session_ttl"`
	DeleteConfirmTimeout      time.Duration `yaml:"delete_confirm_timeout"`
	PurchaseCooldown          time.Duration `yaml:"purchase_cooldown"`
	SweepInterval             time.Duration `yaml:"sweep_interval"`
	BlockInitiateWhenDegraded bool          `yaml:"block_initiate_when_degraded"`
	DefaultMaxStack           int           `yaml:"default_max_stack" validate:"min=1,max=64"`
	PlayerInventorySlots      int           `yaml:"player_inventory_slots" validate:"min=1"`
	MaxTradeUnits             int           `yaml:"max_trade_units" validate:"min=1"`
}

// VolumeDiscountConfig is one tax tier
type VolumeDiscountConfig struct {
	Threshold  float64 `yaml:"threshold"`
	Multiplier float64 `yaml:"multiplier"`
}

// EconomyConfig contains currency and tax settings
type EconomyConfig struct {
	Enabled         bool                   `yaml:"enabled"`
	TaxesEnabled    bool                   `yaml:"taxes_enabled"`
	TaxRate         float64                `yaml:"tax_rate" validate:"min=0,max=1"`
	VolumeDiscounts []VolumeDiscountConfig `yaml:"volume_discounts"`
	StartingBalance float64                `yaml:"starting_balance" validate:"min=0"`
}

// FallbackConfig controls degraded mode
type FallbackConfig struct {
	MaxFailures    int           `yaml:"max_failures" validate:"min=1"`
	RecoveryTime   time.Duration `yaml:"recovery_time"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// PersistenceConfig controls trade record retries
type PersistenceConfig struct {
	MaxRetries      int           `yaml:"max_retries" validate:"min=0,max=10"`
	RetryBackoffMin time.Duration `yaml:"retry_backoff_min"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
}

// ConcurrencyConfig contains worker pool and owner loop settings
type ConcurrencyConfig struct {
	IOPoolSize     int `yaml:"io_pool_size" validate:"min=1,max=100"`
	IOPoolBuffer   int `yaml:"io_pool_buffer" validate:"min=1,max=10000"`
	OwnerQueueSize int `yaml:"owner_queue_size" validate:"min=1"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
// Keys missing from the file keep their DefaultConfig values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	for _, validate := range []func() error{
		c.validateAppConfig,
		c.validateTradingConfig,
		c.validateEconomyConfig,
		c.validateFallbackConfig,
		c.validatePersistenceConfig,
		c.validateConcurrencyConfig,
		c.validateSystemConfig,
		c.validateTelemetryConfig,
		c.validateAlertsConfig,
	} {
		if err := validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validModes := []string{"memory", "sqlite", "postgres"}
	if !contains(validModes, c.App.StoreMode) {
		return ValidationError{
			Field:   "app.store_mode",
			Value:   c.App.StoreMode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validModes, ", ")),
		}
	}

	switch c.App.StoreMode {
	case "sqlite":
		if c.App.DatabasePath == "" {
			return ValidationError{
				Field:   "app.database_path",
				Message: "database path is required when store_mode is sqlite",
			}
		}
	case "postgres":
		if c.App.DatabaseURL == "" {
			return ValidationError{
				Field:   "app.database_url",
				Message: "database url is required when store_mode is postgres",
			}
		}
	}

	return nil
}

func (c *Config) validateTradingConfig() error {
	durations := []struct {
		field string
		value time.Duration
	}{
		{"trading.session_ttl", c.Trading.SessionTTL},
		{"trading.delete_confirm_timeout", c.Trading.DeleteConfirmTimeout},
		{"trading.sweep_interval", c.Trading.SweepInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return ValidationError{Field: d.field, Value: d.value, Message: "must be positive"}
		}
	}

	if c.Trading.PurchaseCooldown < 0 {
		return ValidationError{
			Field:   "trading.purchase_cooldown",
			Value:   c.Trading.PurchaseCooldown,
			Message: "must not be negative",
		}
	}

	if c.Trading.DefaultMaxStack < 1 || c.Trading.DefaultMaxStack > 64 {
		return ValidationError{
			Field:   "trading.default_max_stack",
			Value:   c.Trading.DefaultMaxStack,
			Message: "must be between 1 and 64",
		}
	}

	if c.Trading.PlayerInventorySlots < 1 {
		return ValidationError{
			Field:   "trading.player_inventory_slots",
			Value:   c.Trading.PlayerInventorySlots,
			Message: "must be positive",
		}
	}

	if c.Trading.MaxTradeUnits < 1 {
		return ValidationError{
			Field:   "trading.max_trade_units",
			Value:   c.Trading.MaxTradeUnits,
			Message: "must be positive",
		}
	}

	return nil
}

func (c *Config) validateEconomyConfig() error {
	if c.Economy.TaxRate < 0 || c.Economy.TaxRate > 1 {
		return ValidationError{
			Field:   "economy.tax_rate",
			Value:   c.Economy.TaxRate,
			Message: "must be between 0 and 1",
		}
	}

	if c.Economy.StartingBalance < 0 {
		return ValidationError{
			Field:   "economy.starting_balance",
			Value:   c.Economy.StartingBalance,
			Message: "must not be negative",
		}
	}

	for i, tier := range c.Economy.VolumeDiscounts {
		if tier.Threshold <= 0 {
			return ValidationError{
				Field:   fmt.Sprintf("economy.volume_discounts[%d].threshold", i),
				Value:   tier.Threshold,
				Message: "must be positive",
			}
		}
		if tier.Multiplier < 0 || tier.Multiplier > 1 {
			return ValidationError{
				Field:   fmt.Sprintf("economy.volume_discounts[%d].multiplier", i),
				Value:   tier.Multiplier,
				Message: "must be between 0 and 1",
			}
		}
	}

	return nil
}

func (c *Config) validateFallbackConfig() error {
	if c.Fallback.MaxFailures < 1 {
		return ValidationError{
			Field:   "fallback.max_failures",
			Value:   c.Fallback.MaxFailures,
			Message: "must be at least 1",
		}
	}
	if c.Fallback.RecoveryTime <= 0 {
		return ValidationError{
			Field:   "fallback.recovery_time",
			Value:   c.Fallback.RecoveryTime,
			Message: "must be positive",
		}
	}
	if c.Fallback.HealthInterval <= 0 {
		return ValidationError{
			Field:   "fallback.health_interval",
			Value:   c.Fallback.HealthInterval,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validatePersistenceConfig() error {
	if c.Persistence.MaxRetries < 0 || c.Persistence.MaxRetries > 10 {
		return ValidationError{
			Field:   "persistence.max_retries",
			Value:   c.Persistence.MaxRetries,
			Message: "must be between 0 and 10",
		}
	}
	if c.Persistence.RetryBackoffMax < c.Persistence.RetryBackoffMin {
		return ValidationError{
			Field:   "persistence.retry_backoff_max",
			Value:   c.Persistence.RetryBackoffMax,
			Message: "must not be below retry_backoff_min",
		}
	}
	return nil
}

func (c *Config) validateConcurrencyConfig() error {
	if c.Concurrency.IOPoolSize < 1 {
		return ValidationError{
			Field:   "concurrency.io_pool_size",
			Value:   c.Concurrency.IOPoolSize,
			Message: "must be positive",
		}
	}
	if c.Concurrency.IOPoolBuffer < 1 {
		return ValidationError{
			Field:   "concurrency.io_pool_buffer",
			Value:   c.Concurrency.IOPoolBuffer,
			Message: "must be positive",
		}
	}
	if c.Concurrency.OwnerQueueSize < 1 {
		return ValidationError{
			Field:   "concurrency.owner_queue_size",
			Value:   c.Concurrency.OwnerQueueSize,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateTelemetryConfig() error {
	if !c.Telemetry.EnableMetrics {
		return nil
	}
	if c.Telemetry.MetricsPort <= 0 || c.Telemetry.MetricsPort > 65535 {
		return ValidationError{
			Field:   "telemetry.metrics_port",
			Value:   c.Telemetry.MetricsPort,
			Message: "must be a valid TCP port",
		}
	}
	return nil
}

func (c *Config) validateAlertsConfig() error {
	if c.Alerts.SlackWebhookURL == "" {
		return nil
	}
	u, err := url.Parse(c.Alerts.SlackWebhookURL.Reveal())
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return ValidationError{
			Field:   "alerts.slack_webhook_url",
			Value:   c.Alerts.SlackWebhookURL,
			Message: "must be an http(s) url",
		}
	}
	return nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	// Secret fields redact themselves on marshal
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the stock configuration: in-memory records, currency
// trading on, 5% tax with volume tiers.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			StoreMode:    "memory",
			DatabasePath: "data/trades.db",
		},
		Trading: TradingConfig{
			SessionTTL:           5 * time.Minute,
			DeleteConfirmTimeout: 5 * time.Second,
			PurchaseCooldown:     300 * time.Millisecond,
			SweepInterval:        30 * time.Second,
			DefaultMaxStack:      64,
			PlayerInventorySlots: 36,
			MaxTradeUnits:        64 * 36,
		},
		Economy: EconomyConfig{
			Enabled:      true,
			TaxesEnabled: true,
			TaxRate:      0.05,
			VolumeDiscounts: []VolumeDiscountConfig{
				{Threshold: 1000, Multiplier: 0.95},
				{Threshold: 5000, Multiplier: 0.85},
				{Threshold: 10000, Multiplier: 0.75},
			},
			StartingBalance: 0,
		},
		Fallback: FallbackConfig{
			MaxFailures:    3,
			RecoveryTime:   30 * time.Second,
			HealthInterval: 10 * time.Second,
		},
		Persistence: PersistenceConfig{
			MaxRetries:      3,
			RetryBackoffMin: 100 * time.Millisecond,
			RetryBackoffMax: 2 * time.Second,
		},
		Concurrency: ConcurrencyConfig{
			IOPoolSize:     8,
			IOPoolBuffer:   1000,
			OwnerQueueSize: 256,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
