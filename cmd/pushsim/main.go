// Command pushsim runs one device push session against a token registry using
// a simulated platform: permission, token fetch, registration, a token
// rotation, inbound messages and logout.
package main

import (
	"context"
	_ "embed"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-crowdship-push/internal/simulator"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/pushclient"
	"github.com/tinywideclouds/go-crowdship-push/pushclient/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	userID := flag.String("user", "courier-1", "user id to register the device for")
	deny := flag.Bool("deny", false, "simulate the user denying notification permission")
	keep := flag.Bool("keep", false, "skip logout so the registration stays in place")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "err", err)
	}

	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "crowdship-pushsim")
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

	store, closer, err := pushclient.NewTokenStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("Token store failed", "err", err)
		os.Exit(1)
	}
	defer closer.Close()

	platform := simulator.New(simulator.Config{
		Platform:    cfg.Platform,
		GrantAccess: !*deny,
		TokenPrefix: "pushsim",
	}, logger)

	client, err := pushclient.New(cfg, store, pushclient.Bridges{
		Messaging:   platform,
		Permissions: platform,
		Notifier:    platform,
		Channels:    platform,
		Navigator:   platform,
	}, logger)
	if err != nil {
		logger.Error("Push client creation failed", "err", err)
		os.Exit(1)
	}
	defer client.Stop()

	if err := client.Bootstrap(ctx); err != nil {
		logger.Error("Bootstrap failed", "err", err)
		os.Exit(1)
	}
	if err := client.Start(ctx); err != nil {
		logger.Warn("Push unavailable for this session", "err", err)
		return
	}

	if !client.Login(ctx, *userID) {
		logger.Error("Registration with the backend failed", "user_id", *userID)
	}

	platform.RotateToken(ctx)

	msg := push.RemoteMessage{
		ID:           "pushsim-1",
		Notification: &push.Notification{Title: "New booking", Body: "A parcel is waiting for pickup"},
		Data:         map[string]string{push.DataKeyType: push.MessageTypeBookingNew.String(), push.DataKeyBookingID: "demo-1"},
	}
	platform.DeliverForeground(ctx, msg)
	if target, ok := client.NotificationOpened(ctx, msg.Data); ok {
		logger.Info("Opened notification routed", "target", target)
	}

	if *keep {
		logger.Info("Leaving device registered", "user_id", *userID)
		return
	}
	if !client.Logout(ctx) {
		logger.Warn("Backend unregistration failed; local token cleared anyway")
	}
	logger.Info("Session complete", "displayed", len(platform.Displayed()))
}
