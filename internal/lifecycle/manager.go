// Package lifecycle owns the device push token for the session: it waits for
// notification permission, resolves the token from storage or the messaging
// SDK, and follows token refreshes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-crowdship-push/internal/permission"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// State is the session state of the manager.
type State string

const (
	StateIdle              State = "idle"
	StatePermissionPending State = "permission_pending"
	StatePermissionGranted State = "permission_granted"
	StatePermissionDenied  State = "permission_denied"
	StateTokenResolved     State = "token_resolved"
)

var (
	ErrPermissionDenied = errors.New("notification permission not granted")
	ErrTokenFetch       = errors.New("push token fetch failed")
	ErrAlreadyStarted   = errors.New("token lifecycle already started")
)

// TokenEvent is delivered to observers whenever the resolved token is emitted.
type TokenEvent struct {
	Token string
	// Refreshed is true when the token came from the platform refresh stream.
	Refreshed bool
}

// Manager is safe for concurrent use. The store is the source of truth; the
// in-memory token is an observer copy for the session.
type Manager struct {
	gate      permission.Gate
	store     push.TokenStore
	messaging push.Messaging
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	token      string
	refreshSub push.Subscription

	observers push.Stream[TokenEvent]
}

func NewManager(gate permission.Gate, store push.TokenStore, messaging push.Messaging, logger *slog.Logger) *Manager {
	return &Manager{
		gate:      gate,
		store:     store,
		messaging: messaging,
		logger:    logger.With("component", "TokenLifecycle"),
		state:     StateIdle,
	}
}

// Start runs the permission gate once and, when granted, resolves the token and
// subscribes to token refresh for the rest of the session. A refresh
// subscription is kept even if the initial fetch fails, and the fetch error
// is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = StatePermissionPending
	m.mu.Unlock()

	if !m.gate.RequestPermission(ctx) {
		m.setState(StatePermissionDenied)
		m.logger.Warn("Notification permission denied; push disabled for this session")
		return ErrPermissionDenied
	}
	m.setState(StatePermissionGranted)

	_, err := m.Resolve(ctx)

	m.mu.Lock()
	if m.refreshSub == nil {
		m.refreshSub = m.messaging.OnTokenRefresh(m.handleRefresh)
	}
	m.mu.Unlock()

	return err
}

// Resolve returns the stored token, or fetches and persists a fresh one.
// A fetch failure leaves the store untouched and is not retried.
func (m *Manager) Resolve(ctx context.Context) (string, error) {
	if !m.permitted() {
		return "", ErrPermissionDenied
	}

	token, ok, err := m.store.Get(ctx)
	if err != nil {
		m.logger.Warn("Token store read failed; treating token as absent", "err", err)
		ok = false
	}

	if !ok {
		token, err = m.messaging.GetToken(ctx)
		if err != nil {
			m.logger.Error("Push token fetch failed", "err", err)
			return "", fmt.Errorf("%w: %v", ErrTokenFetch, err)
		}
		if token == "" {
			m.logger.Error("Messaging service returned an empty token")
			return "", fmt.Errorf("%w: empty token", ErrTokenFetch)
		}
		if err := m.store.Set(ctx, token); err != nil {
			m.logger.Error("Failed to persist push token", "err", err)
		}
		m.logger.Info("Push token fetched from messaging service")
	}

	m.emit(ctx, TokenEvent{Token: token})
	return token, nil
}

// DeleteToken revokes the token with the messaging service and clears local state.
func (m *Manager) DeleteToken(ctx context.Context) error {
	if err := m.messaging.DeleteToken(ctx); err != nil {
		m.logger.Error("Messaging token deletion failed", "err", err)
		return fmt.Errorf("delete push token: %w", err)
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("Failed to clear stored push token", "err", err)
	}

	m.mu.Lock()
	m.token = ""
	if m.state == StateTokenResolved {
		m.state = StatePermissionGranted
	}
	m.mu.Unlock()
	return nil
}

// Forget drops the session copy of the token without touching the store or
// the messaging service. The next Resolve reads the store again.
func (m *Manager) Forget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	if m.state == StateTokenResolved {
		m.state = StatePermissionGranted
	}
}

// Observe registers fn for every token emission until the subscription is released.
func (m *Manager) Observe(fn func(ctx context.Context, ev TokenEvent)) push.Subscription {
	return m.observers.Subscribe(fn)
}

// Token returns the session copy of the token, if one has been resolved.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stop releases the refresh subscription.
func (m *Manager) Stop() {
	m.mu.Lock()
	sub := m.refreshSub
	m.refreshSub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (m *Manager) handleRefresh(ctx context.Context, token string) {
	if token == "" {
		m.logger.Warn("Ignoring empty refreshed token")
		return
	}
	if err := m.store.Set(ctx, token); err != nil {
		m.logger.Error("Failed to persist refreshed token", "err", err)
	}
	m.logger.Info("Push token refreshed")
	m.emit(ctx, TokenEvent{Token: token, Refreshed: true})
}

func (m *Manager) emit(ctx context.Context, ev TokenEvent) {
	m.mu.Lock()
	m.token = ev.Token
	m.state = StateTokenResolved
	m.mu.Unlock()

	m.observers.Publish(ctx, ev)
}

func (m *Manager) permitted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePermissionGranted || m.state == StateTokenResolved
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}
