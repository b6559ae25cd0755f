package bootstrap

import (
	"bartershops/pkg/logging"
)

// InitLogger builds the zap logger for cfg and installs it as the global logger
func InitLogger(cfg *Config) (*logging.ZapLogger, error) {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.SetGlobalLogger(logger)
	return logger, nil
}
