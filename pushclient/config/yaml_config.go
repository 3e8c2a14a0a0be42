package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type YamlStorageConfig struct {
	Driver string          `yaml:"driver"`
	Path   string          `yaml:"path"`
	Redis  YamlRedisConfig `yaml:"redis"`
}

// YamlConfig mirrors the raw client config file.
type YamlConfig struct {
	APIBaseURL  string            `yaml:"api_base_url"`
	HTTPTimeout string            `yaml:"http_timeout"`
	Platform    string            `yaml:"platform"`
	Storage     YamlStorageConfig `yaml:"storage"`
}

// NewConfigFromYaml converts the YamlConfig into a base Config.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		APIBaseURL: baseCfg.APIBaseURL,
		Platform:   push.Platform(baseCfg.Platform),
		Storage: StorageConfig{
			Driver: StorageDriver(baseCfg.Storage.Driver),
			Path:   baseCfg.Storage.Path,
			Redis: RedisConfig{
				Addr:     baseCfg.Storage.Redis.Addr,
				Password: baseCfg.Storage.Redis.Password,
				DB:       baseCfg.Storage.Redis.DB,
			},
		},
	}

	if baseCfg.HTTPTimeout != "" {
		d, err := time.ParseDuration(baseCfg.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid http_timeout %q: %w", baseCfg.HTTPTimeout, err)
		}
		cfg.HTTPTimeout = d
	}

	logger.Debug("YAML config mapping complete",
		"api_base_url", cfg.APIBaseURL,
		"platform", cfg.Platform,
		"storage", cfg.Storage.Driver,
	)
	return cfg, nil
}
