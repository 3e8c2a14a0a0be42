// Package fcm delivers notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-crowdship-push/internal/router"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// MessagingClient is the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// BuildMessage assembles the multicast message. Android deliveries are filed
// under the channel the device router would pick for the same type.
func BuildMessage(tokens []string, content dispatch.Content, data map[string]string) *messaging.MulticastMessage {
	sound := content.Sound
	if sound == "" {
		sound = "default"
	}
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: router.ChannelFor(push.ParseMessageType(data[push.DataKeyType])),
				Sound:     sound,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: sound},
			},
		},
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content dispatch.Content, data map[string]string) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	br, err := d.client.SendEachForMulticast(ctx, BuildMessage(tokens, content, data))
	if err != nil {
		// A rejected batch will never succeed; ack it rather than retry.
		if messaging.IsInvalidArgument(err) {
			d.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "err", err)
			return "skipped: invalid_argument", nil, nil
		}
		return "", nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	var invalidTokens []string
	retryableErrors := 0

	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				invalidTokens = append(invalidTokens, tokens[idx])
				continue
			}
			retryableErrors++
		}
	}

	// Redelivery resends to every token, so a batch is only retried when none of it landed.
	if retryableErrors > 0 && br.SuccessCount == 0 {
		return "", invalidTokens, fmt.Errorf("batch had %d retryable errors", retryableErrors)
	}
	if retryableErrors > 0 {
		d.logger.Warn("FCM partial delivery; not retrying", "success", br.SuccessCount, "retryable_failures", retryableErrors)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d retry_fail:%d", br.SuccessCount, len(invalidTokens), retryableErrors)
	return receipt, invalidTokens, nil
}
