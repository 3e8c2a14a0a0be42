package router

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

const (
	DefaultTitle = "New Notification"
	DefaultBody  = "You have a new message"
)

// Channel IDs a message can be filed under.
const (
	ChannelDefault  = "default"
	ChannelBookings = "bookings"
	ChannelMessages = "messages"
	ChannelTrips    = "trips"
)

// Content builds the local notification for msg, applying the title and body
// defaults and carrying the original data for tap handling.
func Content(msg push.RemoteMessage) push.LocalNotification {
	n := push.LocalNotification{
		Title:     DefaultTitle,
		Body:      DefaultBody,
		ChannelID: ChannelFor(msg.Type()),
		Data:      msg.Data,
	}
	if msg.Notification != nil {
		if msg.Notification.Title != "" {
			n.Title = msg.Notification.Title
		}
		if msg.Notification.Body != "" {
			n.Body = msg.Notification.Body
		}
	}
	return n
}

// ChannelFor files a message type under its notification channel.
func ChannelFor(t push.MessageType) string {
	switch t {
	case push.MessageTypeBookingUpdate, push.MessageTypeBookingNew:
		return ChannelBookings
	case push.MessageTypeTripUpdate, push.MessageTypeTripNew:
		return ChannelTrips
	case push.MessageTypeMessage, push.MessageTypeChat:
		return ChannelMessages
	default:
		return ChannelDefault
	}
}

// Presenter handles messages on the device: it displays local notifications
// and forwards tapped notifications to the navigator.
type Presenter struct {
	notifier  push.LocalNotifier
	navigator push.Navigator
	logger    *slog.Logger
}

// NewPresenter builds a Presenter. navigator may be nil when the host handles
// taps itself.
func NewPresenter(notifier push.LocalNotifier, navigator push.Navigator, logger *slog.Logger) *Presenter {
	return &Presenter{
		notifier:  notifier,
		navigator: navigator,
		logger:    logger.With("component", "MessagePresenter"),
	}
}

// HandleForeground always displays a local notification for a message that
// arrived while the app is active. Display failures are logged only.
func (p *Presenter) HandleForeground(ctx context.Context, msg push.RemoteMessage) {
	target, _ := Route(msg)
	p.logger.Debug("Foreground message received", "message_id", msg.ID, "type", msg.Type(), "target", target)

	if err := p.notifier.Display(ctx, Content(msg)); err != nil {
		p.logger.Error("Failed to display local notification", "message_id", msg.ID, "err", err)
	}
}

// HandleBackground is installed as the platform background handler. The OS
// displays the notification itself, so this only supplies its content. The
// data block rides along and is routed by HandleOpened when the user taps it.
func (p *Presenter) HandleBackground(ctx context.Context, msg push.RemoteMessage) (push.LocalNotification, error) {
	target, _ := Route(msg)
	p.logger.Debug("Background message received", "message_id", msg.ID, "type", msg.Type(), "target", target)
	return Content(msg), nil
}

// HandleOpened routes a tapped notification. It reports the target it
// navigated to, if any.
func (p *Presenter) HandleOpened(ctx context.Context, data map[string]string) (string, bool) {
	target, ok := RouteData(data)
	if !ok {
		p.logger.Debug("Opened notification has no routing data")
		return "", false
	}
	if p.navigator == nil {
		return target, true
	}
	if err := p.navigator.Navigate(ctx, target); err != nil {
		p.logger.Error("Navigation failed", "target", target, "err", err)
		return target, false
	}
	return target, true
}
