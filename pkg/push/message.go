// Package push contains the public domain types and platform contracts shared by
// the device client and the token registry service.
package push

import "time"

// Data payload keys understood by the device router. The registry writes the same
// keys when it builds an outbound message, so both ends agree on the contract.
const (
	DataKeyType      = "type"
	DataKeyScreen    = "screen"
	DataKeyBookingID = "bookingId"
	DataKeyTripID    = "tripId"
	DataKeyChatID    = "chatId"
)

// MessageType is the closed set of payload types the app knows how to route.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeBookingUpdate
	MessageTypeBookingNew
	MessageTypeTripUpdate
	MessageTypeTripNew
	MessageTypeMessage
	MessageTypeChat
	MessageTypePayment
	MessageTypeNotification
)

var messageTypeNames = map[MessageType]string{
	MessageTypeBookingUpdate: "booking_update",
	MessageTypeBookingNew:    "booking_new",
	MessageTypeTripUpdate:    "trip_update",
	MessageTypeTripNew:       "trip_new",
	MessageTypeMessage:       "message",
	MessageTypeChat:          "chat",
	MessageTypePayment:       "payment",
	MessageTypeNotification:  "notification",
}

// ParseMessageType maps a wire value to a MessageType. Empty and unrecognised
// values map to MessageTypeUnknown.
func ParseMessageType(s string) MessageType {
	for t, name := range messageTypeNames {
		if name == s {
			return t
		}
	}
	return MessageTypeUnknown
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Notification is the optional display block of a remote message.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// RemoteMessage is an inbound push payload as delivered by the platform
// messaging SDK. Data is nil when the payload carried no data block.
type RemoteMessage struct {
	ID           string            `json:"messageId,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	SentAt       time.Time         `json:"sentTime,omitempty"`
}

// Type returns the routed message type, or MessageTypeUnknown when absent.
func (m RemoteMessage) Type() MessageType {
	if m.Data == nil {
		return MessageTypeUnknown
	}
	return ParseMessageType(m.Data[DataKeyType])
}

// LocalNotification is the content handed to the platform local-notification API.
type LocalNotification struct {
	Title     string
	Body      string
	ChannelID string
	Data      map[string]string
}
