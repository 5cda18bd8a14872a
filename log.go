package kernel

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the kernel's logger from Config, choosing the console
// encoder for interactive use and the JSON encoder for production
// deployments, the same split zap's own NewDevelopment/NewProduction
// presets draw, generalized to a single config-driven constructor since
// the kernel chooses its level and encoding from Config rather than a
// fixed preset.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log: invalid level %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewProductionConfig()
	if !cfg.LogJSON {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("log: build logger: %w", err)
	}
	return logger, nil
}

// BuildBackend constructs the StorageBackend Config selects: a local on-disk
// directory or a Redis-backed store.
func (c *Config) BuildBackend(log *zap.Logger) (StorageBackend, error) {
	switch c.Backend {
	case "redis":
		return NewRedisBackend(RedisBackendConfig{
			Addr:      c.RedisAddr,
			DB:        c.RedisDB,
			Password:  c.RedisPassword,
			KeyPrefix: "hako:fs:",
		}, log)
	default:
		return NewLocalBackend(c.LocalPath)
	}
}
