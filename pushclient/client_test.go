package pushclient_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-crowdship-push/internal/lifecycle"
	"github.com/tinywideclouds/go-crowdship-push/internal/simulator"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/pushclient"
	"github.com/tinywideclouds/go-crowdship-push/pushclient/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	Method string
	Path   string
	Body   map[string]string
}

type fakeRegistry struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.calls = append(f.calls, call{Method: r.Method, Path: r.URL.Path, Body: body})
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeRegistry) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fixture struct {
	client   *pushclient.Client
	platform *simulator.Platform
	registry *fakeRegistry
	store    push.TokenStore
}

func setup(t *testing.T, simCfg simulator.Config) *fixture {
	t.Helper()
	logger := newTestLogger()

	registry := &fakeRegistry{}
	srv := httptest.NewServer(registry)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		APIBaseURL:  srv.URL,
		HTTPTimeout: time.Second,
		Platform:    simCfg.Platform,
		Storage:     config.StorageConfig{Driver: config.StorageMemory},
	}
	store, closer, err := pushclient.NewTokenStore(context.Background(), cfg.Storage, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	platform := simulator.New(simCfg, logger)
	client, err := pushclient.New(cfg, store, pushclient.Bridges{
		Messaging:   platform,
		Permissions: platform,
		Notifier:    platform,
		Channels:    platform,
		Navigator:   platform,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(client.Stop)

	return &fixture{client: client, platform: platform, registry: registry, store: store}
}

func TestClient_FullSession(t *testing.T) {
	ctx := context.Background()
	f := setup(t, simulator.Config{Platform: push.PlatformAndroid, GrantAccess: true})

	require.NoError(t, f.client.Bootstrap(ctx))
	assert.Len(t, f.platform.Channels(), 4)

	assert.Equal(t, push.PermissionNotRequested, f.client.Permission())
	require.NoError(t, f.client.Start(ctx))
	token, ok := f.client.Token()
	require.True(t, ok)
	assert.Equal(t, lifecycle.StateTokenResolved, f.client.State())
	assert.Equal(t, push.PermissionGranted, f.client.Permission())

	// Login registers the resolved token.
	require.True(t, f.client.Login(ctx, "user-1"))
	calls := f.registry.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, push.PathRegister, calls[0].Path)
	assert.Equal(t, token, calls[0].Body["token"])
	assert.Equal(t, "user-1", calls[0].Body["userId"])
	assert.Equal(t, "android", calls[0].Body["platform"])

	// A refresh while logged in is pushed to the backend.
	rotated := f.platform.RotateToken(ctx)
	calls = f.registry.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPut, calls[1].Method)
	assert.Equal(t, push.PathRefresh, calls[1].Path)
	assert.Equal(t, rotated, calls[1].Body["token"])

	stored, ok, err := f.store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rotated, stored)

	// Logout unregisters and clears local state.
	require.True(t, f.client.Logout(ctx))
	calls = f.registry.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, http.MethodDelete, calls[2].Method)
	assert.Equal(t, push.PathUnregister, calls[2].Path)

	_, ok, err = f.store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok = f.client.Token()
	assert.False(t, ok)

	// Refreshes after logout stay local.
	f.platform.RotateToken(ctx)
	assert.Len(t, f.registry.recorded(), 3)
}

func TestClient_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	f := setup(t, simulator.Config{Platform: push.PlatformAndroid, GrantAccess: false})

	err := f.client.Start(ctx)
	require.ErrorIs(t, err, lifecycle.ErrPermissionDenied)
	assert.Equal(t, 0, f.platform.TokenRequests())
	assert.Equal(t, push.PermissionDenied, f.client.Permission())

	refresh, messages := f.platform.ActiveListeners()
	assert.Equal(t, 0, refresh)
	assert.Equal(t, 0, messages)

	assert.False(t, f.client.Login(ctx, "user-1"))
	assert.Empty(t, f.registry.recorded())
}

func TestClient_ForegroundAndBackgroundMessages(t *testing.T) {
	ctx := context.Background()
	f := setup(t, simulator.Config{Platform: push.PlatformIOS, GrantAccess: true})

	require.NoError(t, f.client.Bootstrap(ctx))
	require.NoError(t, f.client.Start(ctx))

	// iOS has no channels.
	assert.Empty(t, f.platform.Channels())

	f.platform.DeliverForeground(ctx, push.RemoteMessage{
		ID:           "m1",
		Notification: &push.Notification{Title: "Trip update"},
		Data:         map[string]string{push.DataKeyType: "trip_update", push.DataKeyTripID: "t9"},
	})
	displayed := f.platform.Displayed()
	require.Len(t, displayed, 1)
	assert.Equal(t, "Trip update", displayed[0].Title)
	assert.Equal(t, "You have a new message", displayed[0].Body)
	assert.Equal(t, "trips", displayed[0].ChannelID)

	content, err := f.platform.DeliverBackground(ctx, push.RemoteMessage{ID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, "New Notification", content.Title)

	target, ok := f.client.NotificationOpened(ctx, displayed[0].Data)
	require.True(t, ok)
	assert.Equal(t, "/screens/trips/t9", target)
	assert.Equal(t, []string{"/screens/trips/t9"}, f.platform.Navigations())
}

func TestClient_RevokeToken(t *testing.T) {
	ctx := context.Background()
	f := setup(t, simulator.Config{Platform: push.PlatformAndroid, GrantAccess: true})

	require.NoError(t, f.client.Start(ctx))
	first, ok := f.client.Token()
	require.True(t, ok)

	require.NoError(t, f.client.RevokeToken(ctx))
	_, ok, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, f.client.Login(ctx, "user-1"))
	second, ok := f.client.Token()
	require.True(t, ok)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, f.platform.TokenRequests())
}

func TestClient_StopReleasesListeners(t *testing.T) {
	ctx := context.Background()
	f := setup(t, simulator.Config{Platform: push.PlatformAndroid, GrantAccess: true})

	require.NoError(t, f.client.Start(ctx))
	refresh, messages := f.platform.ActiveListeners()
	assert.Equal(t, 1, refresh)
	assert.Equal(t, 1, messages)

	f.client.Stop()
	refresh, messages = f.platform.ActiveListeners()
	assert.Equal(t, 0, refresh)
	assert.Equal(t, 0, messages)
}

func TestNewTokenStore(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("file driver persists across instances", func(t *testing.T) {
		cfg := config.StorageConfig{Driver: config.StorageFile, Path: filepath.Join(t.TempDir(), "push.json")}

		store, _, err := pushclient.NewTokenStore(ctx, cfg, logger)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "tok-1"))

		reopened, _, err := pushclient.NewTokenStore(ctx, cfg, logger)
		require.NoError(t, err)
		token, ok, err := reopened.Get(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "tok-1", token)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, _, err := pushclient.NewTokenStore(ctx, config.StorageConfig{Driver: "sqlite"}, logger)
		assert.Error(t, err)
	})
}

func TestNew_RequiresBridges(t *testing.T) {
	cfg := &config.Config{Platform: push.PlatformAndroid}
	_, err := pushclient.New(cfg, nil, pushclient.Bridges{}, newTestLogger())
	assert.Error(t, err)
}
