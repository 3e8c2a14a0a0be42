package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

const (
	DefaultAPIBaseURL  = "https://api.example.com"
	DefaultHTTPTimeout = 10 * time.Second
)

// StorageDriver selects the key-value backend holding the device token.
type StorageDriver string

const (
	StorageFile   StorageDriver = "file"
	StorageMemory StorageDriver = "memory"
	StorageRedis  StorageDriver = "redis"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Driver StorageDriver
	Path   string
	Redis  RedisConfig
}

// Config is the device client configuration.
type Config struct {
	APIBaseURL  string
	HTTPTimeout time.Duration
	Platform    push.Platform
	Storage     StorageConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("CROWDSHIP_API_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "CROWDSHIP_API_URL", "source", "env")
		cfg.APIBaseURL = val
	}
	if val := os.Getenv("CROWDSHIP_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "CROWDSHIP_HTTP_TIMEOUT", "source", "env")
			cfg.HTTPTimeout = d
		}
	}
	if val := os.Getenv("CROWDSHIP_PLATFORM"); val != "" {
		logger.Debug("Overriding config value", "key", "CROWDSHIP_PLATFORM", "source", "env")
		cfg.Platform = push.Platform(val)
	}
	if val := os.Getenv("CROWDSHIP_STORAGE_PATH"); val != "" {
		logger.Debug("Overriding config value", "key", "CROWDSHIP_STORAGE_PATH", "source", "env")
		cfg.Storage.Path = val
		cfg.Storage.Driver = StorageFile
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Storage.Redis.Addr = val
		cfg.Storage.Driver = StorageRedis
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Storage.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Storage.Redis.DB = db
		}
	}

	// Final Validation
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	platform, err := push.ParsePlatform(string(cfg.Platform))
	if err != nil {
		return nil, fmt.Errorf("platform is required (android or ios): %w", err)
	}
	cfg.Platform = platform

	switch cfg.Storage.Driver {
	case "":
		cfg.Storage.Driver = StorageMemory
	case StorageFile:
		if cfg.Storage.Path == "" {
			return nil, fmt.Errorf("storage.path is required for the file driver")
		}
	case StorageRedis:
		if cfg.Storage.Redis.Addr == "" {
			return nil, fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
