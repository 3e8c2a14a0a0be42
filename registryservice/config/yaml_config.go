package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlAPNSConfig struct {
	KeyID       string `yaml:"key_id"`
	TeamID      string `yaml:"team_id"`
	BundleID    string `yaml:"bundle_id"`
	P8KeyPath   string `yaml:"p8_key_path"`
	Development bool   `yaml:"development"`
}

// YamlConfig mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string          `yaml:"project_id"`
	ListenAddr             string          `yaml:"listen_addr"`
	TopicID                string          `yaml:"topic_id"`
	SubscriptionID         string          `yaml:"subscription_id"`
	SubscriptionDLQTopicID string          `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int             `yaml:"num_pipeline_workers"`
	MetricsEnabled         bool            `yaml:"metrics_enabled"`
	CorsConfig             YamlCorsConfig  `yaml:"cors"`
	RedisConfig            YamlRedisConfig `yaml:"redis"`
	APNSConfig             YamlAPNSConfig  `yaml:"apns"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:              baseCfg.ProjectID,
		ListenAddr:             baseCfg.ListenAddr,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
		MetricsEnabled:         baseCfg.MetricsEnabled,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		APNS: APNSConfig{
			KeyID:       baseCfg.APNSConfig.KeyID,
			TeamID:      baseCfg.APNSConfig.TeamID,
			BundleID:    baseCfg.APNSConfig.BundleID,
			P8KeyPath:   baseCfg.APNSConfig.P8KeyPath,
			Development: baseCfg.APNSConfig.Development,
		},
	}

	if baseCfg.RedisConfig.TTL != "" {
		ttl, err := time.ParseDuration(baseCfg.RedisConfig.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis.ttl %q: %w", baseCfg.RedisConfig.TTL, err)
		}
		cfg.Redis.TTL = ttl
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
