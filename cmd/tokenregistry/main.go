package main

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	firebase "firebase.google.com/go/v4"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-crowdship-push/internal/metrics"
	"github.com/tinywideclouds/go-crowdship-push/internal/platform/apns"
	"github.com/tinywideclouds/go-crowdship-push/internal/platform/fcm"
	"github.com/tinywideclouds/go-crowdship-push/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-crowdship-push/internal/storage/firestore"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/registryservice"
	"github.com/tinywideclouds/go-crowdship-push/registryservice/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "crowdship-token-registry")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// --- Device Store (Decorated) ---
	var store dispatch.DeviceStore = fsStore.NewFirestoreStore(fsClient)
	logger.Info("DeviceStore initialized", "type", "firestore")

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		store = cache.NewCachedDeviceStore(store, redisClient, cfg.Redis.TTL, logger)
		logger.Info("DeviceStore upgraded", "type", "redis_cached_firestore")
	}

	// --- Dispatchers ---
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
	if err != nil {
		logger.Error("Failed to initialize Firebase App", "err", err)
		os.Exit(1)
	}
	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		logger.Error("Failed to create FCM messaging client", "err", err)
		os.Exit(1)
	}
	fcmDispatcher := fcm.NewDispatcher(fcmMessaging, logger)

	dispatchers := map[push.Platform]dispatch.Dispatcher{
		push.PlatformAndroid: fcmDispatcher,
		push.PlatformIOS:     fcmDispatcher,
	}

	if cfg.APNSEnabled() {
		p8, err := os.ReadFile(cfg.APNS.P8KeyPath)
		if err != nil {
			logger.Error("Failed to read APNs key", "path", cfg.APNS.P8KeyPath, "err", err)
			os.Exit(1)
		}
		apnsDispatcher, err := apns.NewDispatcher(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: string(p8),
			Development:  cfg.APNS.Development,
		}, logger)
		if err != nil {
			logger.Error("Failed to create APNs dispatcher", "err", err)
			os.Exit(1)
		}
		dispatchers[push.PlatformIOS] = apnsDispatcher
		logger.Info("APNs dispatcher enabled for ios", "bundle_id", cfg.APNS.BundleID, "development", cfg.APNS.Development)
	} else {
		logger.Info("APNs not configured; ios devices are delivered through FCM")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// --- Subscription & Service ---
	consumer, err := registryservice.NewDeliveryConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Delivery consumer setup failed", "err", err)
		os.Exit(1)
	}

	service, err := registryservice.New(cfg, consumer, dispatchers, store, m, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}
