// Package api serves the device token registration endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-crowdship-push/internal/metrics"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

type TokenAPI struct {
	Store   dispatch.DeviceStore
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func NewTokenAPI(store dispatch.DeviceStore, m *metrics.Metrics, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:   store,
		Metrics: m,
		Logger:  logger.With("component", "TokenAPI"),
	}
}

// Register handles POST /api/fcm/register.
func (api *TokenAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req push.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.reject(w, push.PathRegister, "invalid json")
		return
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.UserID) == "" {
		api.reject(w, push.PathRegister, "token and userId are required")
		return
	}
	platform, err := push.ParsePlatform(string(req.Platform))
	if err != nil {
		api.Logger.Warn("Register: unsupported platform", "platform", req.Platform)
		api.reject(w, push.PathRegister, "unsupported platform")
		return
	}

	device := dispatch.Device{Token: req.Token, Platform: platform}
	if err := api.Store.Register(ctx, req.UserID, device); err != nil {
		api.Logger.Error("Failed to register device token", "user_id", req.UserID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	api.Metrics.IncRegistration(string(platform))
	api.Logger.Info("Device token registered", "user_id", req.UserID, "platform", platform)
	w.WriteHeader(http.StatusNoContent)
}

// Unregister handles DELETE /api/fcm/unregister. Storage failures are logged
// and still answered with 204 so clients can always complete logout.
func (api *TokenAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req push.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.reject(w, push.PathUnregister, "invalid json")
		return
	}
	if req.Token == "" || req.UserID == "" {
		api.reject(w, push.PathUnregister, "token and userId are required")
		return
	}

	if err := api.Store.Unregister(ctx, req.UserID, req.Token); err != nil {
		api.Logger.Warn("Failed to unregister device token", "user_id", req.UserID, "err", err)
	} else {
		api.Metrics.IncUnregistration()
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles PUT /api/fcm/refresh. The body carries no platform, so the
// new token takes the platform of the user's existing devices when they all
// agree, and android otherwise.
func (api *TokenAPI) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req push.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.reject(w, push.PathRefresh, "invalid json")
		return
	}
	if req.Token == "" || req.UserID == "" {
		api.reject(w, push.PathRefresh, "token and userId are required")
		return
	}

	existing, err := api.Store.Fetch(ctx, req.UserID)
	if err != nil {
		api.Logger.Warn("Failed to read existing devices on refresh", "user_id", req.UserID, "err", err)
	}
	platform := InferPlatform(existing)

	if err := api.Store.Register(ctx, req.UserID, dispatch.Device{Token: req.Token, Platform: platform}); err != nil {
		api.Logger.Error("Failed to store refreshed token", "user_id", req.UserID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	api.Metrics.IncRegistration(string(platform))
	api.Logger.Info("Device token refreshed", "user_id", req.UserID, "platform", platform)
	w.WriteHeader(http.StatusNoContent)
}

// InferPlatform returns the single platform shared by devices, or android.
func InferPlatform(devices []dispatch.Device) push.Platform {
	if len(devices) == 0 {
		return push.PlatformAndroid
	}
	platform := devices[0].Platform
	for _, d := range devices[1:] {
		if d.Platform != platform {
			return push.PlatformAndroid
		}
	}
	if platform == "" {
		return push.PlatformAndroid
	}
	return platform
}

func (api *TokenAPI) reject(w http.ResponseWriter, route, msg string) {
	api.Metrics.IncBadRequest(route)
	response.WriteJSONError(w, http.StatusBadRequest, msg)
}
