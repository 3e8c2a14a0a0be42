// Package pushclient assembles the device push subsystem: token storage,
// permission, token lifecycle, message routing, backend sync and channels.
package pushclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-crowdship-push/internal/channels"
	"github.com/tinywideclouds/go-crowdship-push/internal/lifecycle"
	"github.com/tinywideclouds/go-crowdship-push/internal/permission"
	"github.com/tinywideclouds/go-crowdship-push/internal/router"
	"github.com/tinywideclouds/go-crowdship-push/internal/syncclient"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/pushclient/config"
)

// Bridges are the platform capabilities supplied by the host application.
// Permissions is only consulted on android; Channels and Navigator may be nil.
type Bridges struct {
	Messaging   push.Messaging
	Permissions push.RuntimePermissions
	Notifier    push.LocalNotifier
	Channels    push.ChannelManager
	Navigator   push.Navigator
}

type Client struct {
	cfg       *config.Config
	bridges   Bridges
	store     push.TokenStore
	manager   *lifecycle.Manager
	presenter *router.Presenter
	sync      *syncclient.Client
	registrar *channels.Registrar
	logger    *slog.Logger

	mu          sync.Mutex
	userID      string
	foreground  push.Subscription
	tokenEvents push.Subscription
}

// New wires the client. Nothing touches the platform until Bootstrap and Start.
func New(cfg *config.Config, store push.TokenStore, bridges Bridges, logger *slog.Logger) (*Client, error) {
	if bridges.Messaging == nil {
		return nil, errors.New("messaging bridge is required")
	}
	if bridges.Notifier == nil {
		return nil, errors.New("local notifier bridge is required")
	}
	if cfg.Platform == push.PlatformAndroid && bridges.Permissions == nil {
		return nil, errors.New("runtime permissions bridge is required on android")
	}

	gate := permission.ForPlatform(cfg.Platform, bridges.Messaging, bridges.Permissions, logger)

	channelManager := bridges.Channels
	if cfg.Platform != push.PlatformAndroid {
		channelManager = nil
	}

	return &Client{
		cfg:       cfg,
		bridges:   bridges,
		store:     store,
		manager:   lifecycle.NewManager(gate, store, bridges.Messaging, logger),
		presenter: router.NewPresenter(bridges.Notifier, bridges.Navigator, logger),
		sync: syncclient.New(syncclient.Config{
			BaseURL:  cfg.APIBaseURL,
			Timeout:  cfg.HTTPTimeout,
			Platform: cfg.Platform,
		}, store, logger),
		registrar: channels.NewRegistrar(channelManager, logger),
		logger:    logger.With("component", "PushClient"),
	}, nil
}

// Bootstrap performs the process-wide startup work: channel declaration and
// background handler registration. Call it once from the app entry point.
func (c *Client) Bootstrap(ctx context.Context) error {
	if err := c.registrar.Register(ctx); err != nil {
		c.logger.Warn("Some notification channels failed to register", "err", err)
	}
	c.bridges.Messaging.SetBackgroundMessageHandler(c.presenter.HandleBackground)
	c.logger.Info("Push bootstrap complete", "platform", c.cfg.Platform)
	return nil
}

// Start runs the token lifecycle and begins handling foreground messages.
// A denied permission is reported as lifecycle.ErrPermissionDenied and leaves
// the client without push for the session.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.tokenEvents == nil {
		c.tokenEvents = c.manager.Observe(c.onToken)
	}
	c.mu.Unlock()

	err := c.manager.Start(ctx)
	if errors.Is(err, lifecycle.ErrPermissionDenied) {
		return err
	}

	c.mu.Lock()
	if c.foreground == nil {
		c.foreground = c.bridges.Messaging.OnMessage(c.presenter.HandleForeground)
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("start token lifecycle: %w", err)
	}
	return nil
}

// Login resolves the token and registers it for userID. Subsequent refreshes
// are pushed to the backend for this user.
func (c *Client) Login(ctx context.Context, userID string) bool {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()

	token, err := c.manager.Resolve(ctx)
	if err != nil {
		c.logger.Warn("No push token available at login", "user_id", userID, "err", err)
		return false
	}
	return c.sync.Register(ctx, token, userID)
}

// Logout unregisters the device for the current user and forgets the token.
func (c *Client) Logout(ctx context.Context) bool {
	c.mu.Lock()
	userID := c.userID
	c.userID = ""
	c.mu.Unlock()

	if userID == "" {
		return true
	}
	ok := c.sync.Unregister(ctx, userID)
	c.manager.Forget()
	return ok
}

// NotificationOpened routes a notification the user tapped.
func (c *Client) NotificationOpened(ctx context.Context, data map[string]string) (string, bool) {
	return c.presenter.HandleOpened(ctx, data)
}

// Token returns the session token, if resolved.
func (c *Client) Token() (string, bool) {
	return c.manager.Token()
}

func (c *Client) State() lifecycle.State {
	return c.manager.State()
}

// Permission reports the session permission state.
func (c *Client) Permission() push.PermissionState {
	switch c.manager.State() {
	case lifecycle.StateIdle, lifecycle.StatePermissionPending:
		return push.PermissionNotRequested
	case lifecycle.StatePermissionDenied:
		return push.PermissionDenied
	default:
		return push.PermissionGranted
	}
}

// RevokeToken deletes the token with the messaging service and locally. The
// next Login fetches a fresh one.
func (c *Client) RevokeToken(ctx context.Context) error {
	return c.manager.DeleteToken(ctx)
}

// Stop releases every platform subscription held by the client.
func (c *Client) Stop() {
	c.mu.Lock()
	subs := []push.Subscription{c.foreground, c.tokenEvents}
	c.foreground, c.tokenEvents = nil, nil
	c.mu.Unlock()

	for _, s := range subs {
		if s != nil {
			s.Unsubscribe()
		}
	}
	c.manager.Stop()
}

func (c *Client) onToken(ctx context.Context, ev lifecycle.TokenEvent) {
	if !ev.Refreshed {
		return
	}
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	if userID == "" {
		return
	}
	c.sync.Update(ctx, ev.Token, userID)
}

