// Package apns delivers notifications directly to the Apple Push Notification service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
)

// APNSClient is the subset of the apns2.Client methods we use.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 file.
	P8KeyContent string
	// Development targets the sandbox gateway.
	Development bool
}

// Enabled reports whether enough credentials are present to build a client.
func (c Config) Enabled() bool {
	return c.P8KeyContent != "" && c.KeyID != "" && c.TeamID != "" && c.BundleID != ""
}

// NewDispatcher parses the P8 key immediately so bad credentials fail at startup.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Development {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return NewDispatcherWithClient(client, cfg.BundleID, logger), nil
}

// NewDispatcherWithClient builds a dispatcher around an existing client.
func NewDispatcherWithClient(client APNSClient, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// BuildPayload assembles the alert payload with the data keys as custom fields.
func BuildPayload(content dispatch.Content, data map[string]string) *payload.Payload {
	sound := content.Sound
	if sound == "" {
		sound = "default"
	}
	builder := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body).
		Sound(sound)

	for k, v := range data {
		builder.Custom(k, v)
	}
	return builder
}

// Dispatch sends to each token in turn; the APNs HTTP/2 API has no multicast.
// Transport failures across every token are reported as retryable.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content dispatch.Content, data map[string]string) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	var invalidTokens []string
	successCount := 0
	rejectedCount := 0
	transportFailures := 0

	body := BuildPayload(content, data)

	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return "", invalidTokens, err
		}

		res, err := d.client.Push(&apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     body,
			Priority:    apns2.PriorityHigh,
			PushType:    apns2.PushTypeAlert,
		})
		if err != nil {
			d.logger.Error("APNs transport failed", "err", err)
			transportFailures++
			continue
		}

		if res.Sent() {
			successCount++
			continue
		}

		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			invalidTokens = append(invalidTokens, deviceToken)
		default:
			// Configuration problems (topic, payload) say nothing about the token.
			rejectedCount++
			d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	if transportFailures > 0 && successCount == 0 {
		return "", invalidTokens, fmt.Errorf("apns transport failed for %d of %d tokens", transportFailures, len(tokens))
	}

	receipt := fmt.Sprintf("success:%d invalid:%d rejected:%d transport_fail:%d",
		successCount, len(invalidTokens), rejectedCount, transportFailures)
	return receipt, invalidTokens, nil
}
