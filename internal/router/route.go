// Package router turns inbound push payloads into navigation targets and local
// notification content.
package router

import (
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// Navigation targets consumed by the host UI router.
const (
	RouteBookings      = "/screens/bookings"
	RouteTrips         = "/screens/trips"
	RouteChats         = "/screens/chats"
	RoutePayments      = "/screens/payments"
	RouteNotifications = "/screens/notifications"
	RouteDashboard     = "/screens/dashboard"
)

// Route derives the navigation target for msg. ok is false when the message
// carries no data block at all.
func Route(msg push.RemoteMessage) (target string, ok bool) {
	return RouteData(msg.Data)
}

// RouteData applies the routing rules to a raw data block. An explicit screen
// wins; otherwise the message type picks the screen, falling back to the
// category list when the item identifier is missing.
func RouteData(data map[string]string) (string, bool) {
	if data == nil {
		return "", false
	}
	if screen := data[push.DataKeyScreen]; screen != "" {
		return screen, true
	}

	switch push.ParseMessageType(data[push.DataKeyType]) {
	case push.MessageTypeBookingUpdate, push.MessageTypeBookingNew:
		return withID(RouteBookings, data[push.DataKeyBookingID]), true
	case push.MessageTypeTripUpdate, push.MessageTypeTripNew:
		return withID(RouteTrips, data[push.DataKeyTripID]), true
	case push.MessageTypeMessage, push.MessageTypeChat:
		return withID(RouteChats, data[push.DataKeyChatID]), true
	case push.MessageTypePayment:
		return RoutePayments, true
	case push.MessageTypeNotification:
		return RouteNotifications, true
	}
	// Absent and unrecognised types both parse to MessageTypeUnknown.
	return RouteDashboard, true
}

func withID(base, id string) string {
	if id == "" {
		return base
	}
	return base + "/" + id
}
