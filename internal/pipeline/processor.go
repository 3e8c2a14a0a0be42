package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-crowdship-push/internal/metrics"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

// Processor fans a delivery request out to the user's devices.
type Processor struct {
	store       dispatch.DeviceStore
	dispatchers map[push.Platform]dispatch.Dispatcher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewProcessor takes one dispatcher per platform. Devices on a platform with no
// dispatcher are skipped.
func NewProcessor(
	store dispatch.DeviceStore,
	dispatchers map[push.Platform]dispatch.Dispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		store:       store,
		dispatchers: dispatchers,
		metrics:     m,
		logger:      logger.With("component", "DeliveryProcessor"),
	}
}

// Process is the pipeline's StreamProcessor. A returned error nacks the message,
// and redelivery fans out to every platform again, so an error is only returned
// when no device received the notification.
func (p *Processor) Process(ctx context.Context, original messagepipeline.Message, req *DeliveryRequest) error {
	procLogger := p.logger.With("user_id", req.UserID, "pubsub_msg_id", original.ID)

	devices, err := p.store.Fetch(ctx, req.UserID)
	if err != nil {
		procLogger.Error("Failed to fetch device tokens", "err", err)
		return fmt.Errorf("fetch devices: %w", err)
	}
	if len(devices) == 0 {
		procLogger.Info("No devices registered for user; dropping notification")
		p.metrics.IncDropped("no_devices")
		return nil
	}

	byPlatform := make(map[push.Platform][]string)
	for _, d := range devices {
		byPlatform[d.Platform] = append(byPlatform[d.Platform], d.Token)
	}

	platforms := make([]push.Platform, 0, len(byPlatform))
	for platform := range byPlatform {
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	content := req.Content()
	data := req.Data()

	var (
		errs      []error
		delivered bool
	)
	for _, platform := range platforms {
		tokens := byPlatform[platform]
		dispatcher, ok := p.dispatchers[platform]
		if !ok {
			procLogger.Warn("No dispatcher for platform; skipping devices", "platform", platform, "count", len(tokens))
			p.metrics.IncDropped("no_dispatcher")
			continue
		}

		start := time.Now()
		receipt, invalidTokens, err := dispatcher.Dispatch(ctx, tokens, content, data)
		p.metrics.ObserveDispatch(string(platform), time.Since(start))

		if len(invalidTokens) > 0 {
			procLogger.Info("Cleaning up invalid tokens", "platform", platform, "count", len(invalidTokens))
			for _, t := range invalidTokens {
				if err := p.store.Unregister(ctx, req.UserID, t); err != nil {
					procLogger.Warn("Failed to delete invalid token", "platform", platform, "err", err)
				}
			}
			p.metrics.AddRemoval(string(platform), len(invalidTokens))
		}

		if err != nil {
			procLogger.Error("Dispatch failed", "platform", platform, "err", err)
			p.metrics.IncFailure(string(platform))
			errs = append(errs, fmt.Errorf("%s: %w", platform, err))
			continue
		}
		p.metrics.IncSuccess(string(platform))
		procLogger.Info("Dispatched", "platform", platform, "receipt", receipt)
		if len(invalidTokens) < len(tokens) {
			delivered = true
		}
	}

	if len(errs) == 0 {
		return nil
	}
	if delivered {
		procLogger.Warn("Partial delivery; failed platforms are not retried", "err", errors.Join(errs...))
		return nil
	}
	return errors.Join(errs...)
}
