// Package pipeline turns delivery requests published on the fan-out topic
// into provider dispatches for every device a user has registered.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-crowdship-push/internal/metrics"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// ErrMalformed marks a payload that can never be processed.
var ErrMalformed = errors.New("malformed delivery request")

// DeliveryRequest asks the registry to notify every device of one user.
type DeliveryRequest struct {
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Sound     string `json:"sound,omitempty"`
	Type      string `json:"type,omitempty"`
	Screen    string `json:"screen,omitempty"`
	BookingID string `json:"bookingId,omitempty"`
	TripID    string `json:"tripId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
}

func (r *DeliveryRequest) Content() dispatch.Content {
	return dispatch.Content{Title: r.Title, Body: r.Body, Sound: r.Sound}
}

// Data is the payload data block, using the keys the device router reads.
// Empty fields are omitted.
func (r *DeliveryRequest) Data() map[string]string {
	data := make(map[string]string, 5)
	set := func(k, v string) {
		if v != "" {
			data[k] = v
		}
	}
	set(push.DataKeyType, r.Type)
	set(push.DataKeyScreen, r.Screen)
	set(push.DataKeyBookingID, r.BookingID)
	set(push.DataKeyTripID, r.TripID)
	set(push.DataKeyChatID, r.ChatID)
	return data
}

// DecodeDeliveryRequest unmarshals and validates a raw message payload.
// Every error wraps ErrMalformed.
func DecodeDeliveryRequest(msgID string, payload []byte) (*DeliveryRequest, error) {
	var req DeliveryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: message %s: %v", ErrMalformed, msgID, err)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: message %s: missing userId", ErrMalformed, msgID)
	}
	return &req, nil
}

// NewDeliveryTransformer decodes pipeline messages into delivery requests.
// With a dead letter topic a malformed payload is nacked so Pub/Sub moves it
// there after the configured attempts; without one it is acked and dropped.
func NewDeliveryTransformer(deadLetter bool, m *metrics.Metrics, logger *slog.Logger) messagepipeline.MessageTransformer[DeliveryRequest] {
	logger = logger.With("component", "DeliveryTransformer")

	return func(_ context.Context, msg *messagepipeline.Message) (*DeliveryRequest, bool, error) {
		req, err := DecodeDeliveryRequest(msg.ID, msg.Payload)
		if err == nil {
			return req, false, nil
		}
		if deadLetter {
			logger.Warn("Malformed delivery request; nacking to dead letter", "pubsub_msg_id", msg.ID, "err", err)
			return nil, false, err
		}
		logger.Error("Malformed delivery request; dropping", "pubsub_msg_id", msg.ID, "err", err)
		m.IncDropped("malformed")
		return nil, true, err
	}
}
