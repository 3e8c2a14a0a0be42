// Package dispatch holds the registry-side contracts: where device tokens live and
// how a notification reaches them.
package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// Content is the display block of an outbound notification.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

// Device is one registered installation of the app.
type Device struct {
	Token    string        `json:"token"`
	Platform push.Platform `json:"platform"`
}

// Dispatcher sends notification content to a batch of platform tokens.
// It returns a short receipt and the tokens the provider reported as dead.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, content Content, data map[string]string) (string, []string, error)
}

// DeviceStore manages device tokens keyed by user.
type DeviceStore interface {
	// Register adds or replaces a token for the user.
	Register(ctx context.Context, userID string, device Device) error
	// Unregister removes the token. Removing an unknown token is not an error.
	Unregister(ctx context.Context, userID string, token string) error
	// Fetch returns every device registered for the user.
	Fetch(ctx context.Context, userID string) ([]Device, error)
}
