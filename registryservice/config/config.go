package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const DefaultCacheTTL = 24 * time.Hour

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// APNSConfig enables direct APNs delivery for ios devices. When it is
// incomplete, ios tokens go through FCM like android ones.
type APNSConfig struct {
	KeyID       string
	TeamID      string
	BundleID    string
	P8KeyPath   string
	Development bool
}

// Config defines the single, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	MetricsEnabled         bool

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	APNS       APNSConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			logger.Debug("Overriding config value", "key", "METRICS_ENABLED", "source", "env")
			cfg.MetricsEnabled = enabled
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// APNs Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_KEY_ID", "source", "env")
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_TEAM_ID", "source", "env")
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_BUNDLE_ID", "source", "env")
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY_PATH"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_P8_KEY_PATH", "source", "env")
		cfg.APNS.P8KeyPath = val
	}
	if val := os.Getenv("APNS_DEVELOPMENT"); val != "" {
		dev, _ := strconv.ParseBool(val)
		cfg.APNS.Development = dev
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		var cleanOrigins []string
		for _, o := range strings.Split(corsOrigins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = DefaultCacheTTL
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

// APNSEnabled reports whether every APNs credential is configured.
func (c *Config) APNSEnabled() bool {
	a := c.APNS
	return a.KeyID != "" && a.TeamID != "" && a.BundleID != "" && a.P8KeyPath != ""
}
