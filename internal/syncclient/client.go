// Package syncclient mirrors the device token to the registry backend.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// Config holds the backend location and the platform reported on registration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Platform push.Platform
}

// Client issues one request per operation. There are no retries; callers
// decide whether to try again.
type Client struct {
	baseURL    string
	platform   push.Platform
	httpClient *http.Client
	store      push.TokenStore
	logger     *slog.Logger
}

func New(cfg Config, store push.TokenStore, logger *slog.Logger) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout}, store, logger)
}

func NewWithHTTPClient(cfg Config, httpClient *http.Client, store push.TokenStore, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		platform:   cfg.Platform,
		httpClient: httpClient,
		store:      store,
		logger:     logger.With("component", "BackendSync"),
	}
}

// Register announces token for userID.
func (c *Client) Register(ctx context.Context, token, userID string) bool {
	body := push.RegisterRequest{Token: token, UserID: userID, Platform: c.platform}
	if err := c.do(ctx, http.MethodPost, push.PathRegister, body); err != nil {
		c.logger.Error("Token registration failed", "user_id", userID, "err", err)
		return false
	}
	c.logger.Info("Token registered with backend", "user_id", userID)
	return true
}

// Unregister removes the locally stored token from the backend and then clears
// it locally. The local clear happens whatever the remote outcome; the return
// value reports the remote outcome. With no local token there is nothing to
// unregister and no request is made.
func (c *Client) Unregister(ctx context.Context, userID string) bool {
	token, ok, err := c.store.Get(ctx)
	if err != nil {
		c.logger.Warn("Token store read failed; nothing to unregister", "err", err)
		return true
	}
	if !ok {
		return true
	}

	remoteErr := c.do(ctx, http.MethodDelete, push.PathUnregister, push.TokenRequest{Token: token, UserID: userID})
	if remoteErr != nil {
		c.logger.Error("Token unregistration failed", "user_id", userID, "err", remoteErr)
	}

	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("Failed to clear local token after unregister", "err", err)
	}

	if remoteErr != nil {
		return false
	}
	c.logger.Info("Token unregistered from backend", "user_id", userID)
	return true
}

// Update replaces the registered token for userID after a refresh.
func (c *Client) Update(ctx context.Context, newToken, userID string) bool {
	if err := c.do(ctx, http.MethodPut, push.PathRefresh, push.TokenRequest{Token: newToken, UserID: userID}); err != nil {
		c.logger.Error("Token update failed", "user_id", userID, "err", err)
		return false
	}
	c.logger.Info("Token updated on backend", "user_id", userID)
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}
