package push

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Platform identifies the mobile operating system of an installation.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// ParsePlatform normalizes a platform string. Only mobile platforms are accepted.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformAndroid:
		return PlatformAndroid, nil
	case PlatformIOS:
		return PlatformIOS, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", s)
	}
}

// PermissionState is the session-scoped notification capability.
type PermissionState string

const (
	PermissionNotRequested PermissionState = "not_requested"
	PermissionGranted      PermissionState = "granted"
	PermissionDenied       PermissionState = "denied"
)

// AuthorizationStatus is returned by the prompt-based messaging authorization request.
type AuthorizationStatus string

const (
	AuthorizationNotDetermined AuthorizationStatus = "not_determined"
	AuthorizationDenied        AuthorizationStatus = "denied"
	AuthorizationAuthorized    AuthorizationStatus = "authorized"
	AuthorizationProvisional   AuthorizationStatus = "provisional"
)

// PermissionResult is returned by a runtime permission request.
type PermissionResult string

const (
	PermissionResultGranted  PermissionResult = "granted"
	PermissionResultDenied   PermissionResult = "denied"
	PermissionResultNeverAsk PermissionResult = "never_ask_again"
)

// PostNotificationsPermission is the runtime permission gating notification display.
const PostNotificationsPermission = "android.permission.POST_NOTIFICATIONS"

// Importance mirrors the platform channel importance levels.
type Importance int

const (
	ImportanceNone Importance = iota
	ImportanceMin
	ImportanceLow
	ImportanceDefault
	ImportanceHigh
	ImportanceMax
)

// Channel is a platform notification category.
type Channel struct {
	ID          string
	Name        string
	Description string
	Importance  Importance
	Vibration   []time.Duration
	LightColor  string
	Sound       string
}

// TokenStore persists the single device push token.
type TokenStore interface {
	// Get returns the stored token; ok is false when none is stored.
	Get(ctx context.Context) (token string, ok bool, err error)
	// Set replaces any stored token.
	Set(ctx context.Context, token string) error
	// Clear removes the stored token. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Messaging is the bridge to the vendor messaging SDK on the device.
type Messaging interface {
	GetToken(ctx context.Context) (string, error)
	DeleteToken(ctx context.Context) error
	RequestAuthorization(ctx context.Context) (AuthorizationStatus, error)
	OnTokenRefresh(handler func(ctx context.Context, token string)) Subscription
	OnMessage(handler func(ctx context.Context, msg RemoteMessage)) Subscription
	// SetBackgroundMessageHandler must be called once at process start,
	// outside of any interactive component tree.
	SetBackgroundMessageHandler(handler BackgroundHandler)
}

// BackgroundHandler runs for messages delivered while the app is not active.
// The returned content is what the platform shows for the message.
type BackgroundHandler func(ctx context.Context, msg RemoteMessage) (LocalNotification, error)

// RuntimePermissions is the bridge to the restricted-permission platform API.
type RuntimePermissions interface {
	Request(ctx context.Context, permission string) (PermissionResult, error)
}

// LocalNotifier displays notifications synthesized on the device.
type LocalNotifier interface {
	Display(ctx context.Context, n LocalNotification) error
}

// ChannelManager declares notification channels. Declaring an existing channel
// updates its metadata.
type ChannelManager interface {
	CreateChannel(ctx context.Context, ch Channel) error
}

// Navigator opens a route in the host UI layer.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}
