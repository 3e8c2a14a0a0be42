// Package simulator provides an in-process stand-in for the device platform
// bridges: the messaging SDK, runtime permissions, local notifications,
// notification channels and the UI navigator. It backs the pushsim binary and
// the client tests.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// Config controls how the simulated platform answers.
type Config struct {
	Platform     push.Platform
	GrantAccess  bool
	Provisional  bool
	TokenPrefix  string
	FailTokenGet bool
}

// Platform implements every device bridge in pkg/push.
type Platform struct {
	cfg    Config
	logger *slog.Logger

	mu                sync.Mutex
	token             string
	tokenRequests     int
	permissionAsks    int
	displayed         []push.LocalNotification
	channels          map[string]push.Channel
	navigations       []string
	backgroundHandler push.BackgroundHandler

	refresh  push.Stream[string]
	messages push.Stream[push.RemoteMessage]
}

func New(cfg Config, logger *slog.Logger) *Platform {
	if cfg.Platform == "" {
		cfg.Platform = push.PlatformAndroid
	}
	return &Platform{
		cfg:      cfg,
		logger:   logger.With("component", "SimulatedPlatform"),
		channels: make(map[string]push.Channel),
	}
}

// --- push.Messaging ---

func (p *Platform) GetToken(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenRequests++
	if p.cfg.FailTokenGet {
		return "", errors.New("simulated messaging service unavailable")
	}
	if p.token == "" {
		p.token = p.newToken()
	}
	return p.token, nil
}

func (p *Platform) DeleteToken(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	return nil
}

func (p *Platform) RequestAuthorization(_ context.Context) (push.AuthorizationStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permissionAsks++
	switch {
	case p.cfg.GrantAccess && p.cfg.Provisional:
		return push.AuthorizationProvisional, nil
	case p.cfg.GrantAccess:
		return push.AuthorizationAuthorized, nil
	default:
		return push.AuthorizationDenied, nil
	}
}

func (p *Platform) OnTokenRefresh(handler func(context.Context, string)) push.Subscription {
	return p.refresh.Subscribe(handler)
}

func (p *Platform) OnMessage(handler func(context.Context, push.RemoteMessage)) push.Subscription {
	return p.messages.Subscribe(handler)
}

func (p *Platform) SetBackgroundMessageHandler(handler push.BackgroundHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backgroundHandler = handler
}

// --- push.RuntimePermissions ---

func (p *Platform) Request(_ context.Context, permission string) (push.PermissionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permissionAsks++
	if permission != push.PostNotificationsPermission {
		return push.PermissionResultDenied, fmt.Errorf("unknown permission %q", permission)
	}
	if p.cfg.GrantAccess {
		return push.PermissionResultGranted, nil
	}
	return push.PermissionResultDenied, nil
}

// --- push.LocalNotifier ---

func (p *Platform) Display(_ context.Context, n push.LocalNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.displayed = append(p.displayed, n)
	p.logger.Info("Local notification displayed", "title", n.Title, "channel", n.ChannelID)
	return nil
}

// --- push.ChannelManager ---

func (p *Platform) CreateChannel(_ context.Context, ch push.Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[ch.ID] = ch
	return nil
}

// --- push.Navigator ---

func (p *Platform) Navigate(_ context.Context, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, target)
	p.logger.Info("Navigated", "target", target)
	return nil
}

// --- Simulation controls ---

// RotateToken issues a new token and delivers it on the refresh stream.
func (p *Platform) RotateToken(ctx context.Context) string {
	p.mu.Lock()
	p.token = p.newToken()
	token := p.token
	p.mu.Unlock()

	p.refresh.Publish(ctx, token)
	return token
}

// DeliverForeground hands msg to the foreground message listeners.
func (p *Platform) DeliverForeground(ctx context.Context, msg push.RemoteMessage) {
	p.messages.Publish(ctx, msg)
}

// DeliverBackground hands msg to the registered background handler and
// returns the content the OS would show.
func (p *Platform) DeliverBackground(ctx context.Context, msg push.RemoteMessage) (push.LocalNotification, error) {
	p.mu.Lock()
	handler := p.backgroundHandler
	p.mu.Unlock()
	if handler == nil {
		return push.LocalNotification{}, errors.New("no background handler registered")
	}
	return handler(ctx, msg)
}

func (p *Platform) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

func (p *Platform) PermissionRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissionAsks
}

func (p *Platform) Displayed() []push.LocalNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]push.LocalNotification(nil), p.displayed...)
}

func (p *Platform) Channels() map[string]push.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]push.Channel, len(p.channels))
	for k, v := range p.channels {
		out[k] = v
	}
	return out
}

func (p *Platform) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// ActiveListeners reports how many refresh and message listeners are attached.
func (p *Platform) ActiveListeners() (refresh, messages int) {
	return p.refresh.Len(), p.messages.Len()
}

func (p *Platform) newToken() string {
	prefix := p.cfg.TokenPrefix
	if prefix == "" {
		prefix = "sim"
	}
	return fmt.Sprintf("%s:%s:%s", prefix, p.cfg.Platform, uuid.NewString())
}
