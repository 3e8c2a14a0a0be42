// Package permission acquires the platform notification permission.
package permission

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// Gate asks the platform for notification permission. A false result is final
// for the session; callers re-ask on the next launch.
type Gate interface {
	RequestPermission(ctx context.Context) bool
}

// AndroidGate issues a runtime request for the post-notifications permission.
type AndroidGate struct {
	perms  push.RuntimePermissions
	logger *slog.Logger
}

func NewAndroidGate(perms push.RuntimePermissions, logger *slog.Logger) *AndroidGate {
	return &AndroidGate{perms: perms, logger: logger.With("component", "AndroidPermissionGate")}
}

func (g *AndroidGate) RequestPermission(ctx context.Context) bool {
	result, err := g.perms.Request(ctx, push.PostNotificationsPermission)
	if err != nil {
		g.logger.Error("Notification permission request failed", "err", err)
		return false
	}
	granted := result == push.PermissionResultGranted
	g.logger.Info("Notification permission resolved", "result", result, "granted", granted)
	return granted
}

// IOSGate requests messaging authorization through the vendor SDK.
type IOSGate struct {
	messaging push.Messaging
	logger    *slog.Logger
}

func NewIOSGate(messaging push.Messaging, logger *slog.Logger) *IOSGate {
	return &IOSGate{messaging: messaging, logger: logger.With("component", "IOSPermissionGate")}
}

func (g *IOSGate) RequestPermission(ctx context.Context) bool {
	status, err := g.messaging.RequestAuthorization(ctx)
	if err != nil {
		g.logger.Error("Messaging authorization request failed", "err", err)
		return false
	}
	granted := status == push.AuthorizationAuthorized || status == push.AuthorizationProvisional
	g.logger.Info("Messaging authorization resolved", "status", status, "granted", granted)
	return granted
}

// ForPlatform picks the gate variant for the platform detected at startup.
func ForPlatform(platform push.Platform, messaging push.Messaging, perms push.RuntimePermissions, logger *slog.Logger) Gate {
	if platform == push.PlatformAndroid {
		return NewAndroidGate(perms, logger)
	}
	return NewIOSGate(messaging, logger)
}
