package bootstrap

import (
	"bartershops/internal/config"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Pre-flight Checks
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	switch cfg.App.StoreMode {
	case "sqlite":
		dir := filepath.Dir(cfg.App.DatabasePath)
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("database_path directory not found: %s", dir)
			}
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("database_path parent is not a directory: %s", dir)
		}
	case "postgres":
		u, err := url.Parse(cfg.App.DatabaseURL.Reveal())
		if err != nil {
			// the parse error echoes the url, keep it out of the message
			return fmt.Errorf("database_url is not a valid url")
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("database_url must use the postgres scheme, got %q", u.Scheme)
		}
	}
	return nil
}
