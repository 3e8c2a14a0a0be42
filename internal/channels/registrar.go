// Package channels declares the app's notification channels at startup.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-crowdship-push/internal/router"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

var vibration = []time.Duration{0, 250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}

const (
	lightColor = "#FF231F7C"
	sound      = "default"
)

// Defaults returns the fixed channel set. Channels share metadata and differ
// only by ID, name and description.
func Defaults() []push.Channel {
	return []push.Channel{
		channel(router.ChannelDefault, "Default", "General notifications"),
		channel(router.ChannelBookings, "Bookings", "Booking updates and confirmations"),
		channel(router.ChannelMessages, "Messages", "Chat messages"),
		channel(router.ChannelTrips, "Trips", "Trip updates and notifications"),
	}
}

func channel(id, name, description string) push.Channel {
	return push.Channel{
		ID:          id,
		Name:        name,
		Description: description,
		Importance:  push.ImportanceMax,
		Vibration:   append([]time.Duration(nil), vibration...),
		LightColor:  lightColor,
		Sound:       sound,
	}
}

// Registrar declares channels on platforms that support them.
type Registrar struct {
	manager push.ChannelManager
	logger  *slog.Logger
}

// NewRegistrar returns a registrar; a nil manager means the platform has no
// channel support and Register is a no-op.
func NewRegistrar(manager push.ChannelManager, logger *slog.Logger) *Registrar {
	return &Registrar{manager: manager, logger: logger.With("component", "ChannelRegistrar")}
}

// Register declares every default channel. Redeclaring updates metadata. A
// failure on one channel does not stop the others; all failures are joined.
func (r *Registrar) Register(ctx context.Context) error {
	if r.manager == nil {
		r.logger.Debug("Platform has no notification channels; skipping")
		return nil
	}

	var errs []error
	for _, ch := range Defaults() {
		if err := r.manager.CreateChannel(ctx, ch); err != nil {
			r.logger.Error("Failed to register notification channel", "channel", ch.ID, "err", err)
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.ID, err))
			continue
		}
		r.logger.Debug("Notification channel registered", "channel", ch.ID)
	}
	return errors.Join(errs...)
}
