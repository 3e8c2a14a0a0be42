package registryservice

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-crowdship-push/registryservice/config"
)

// MaxDeliveryAttempts is the dead letter threshold for delivery requests.
const MaxDeliveryAttempts = 5

// EnsureSubscription creates the delivery subscription, with its dead letter
// policy, when a topic is configured and the subscription does not exist yet.
// It returns the full subscription name.
func EnsureSubscription(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (string, error) {
	subName := resourceName(cfg.ProjectID, "subscriptions", cfg.SubscriptionID)
	if cfg.TopicID == "" {
		return subName, nil
	}

	subConfig := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              resourceName(cfg.ProjectID, "topics", cfg.TopicID),
		AckDeadlineSeconds: 10,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     resourceName(cfg.ProjectID, "topics", cfg.SubscriptionDLQTopicID),
			MaxDeliveryAttempts: MaxDeliveryAttempts,
		}
	}

	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return "", fmt.Errorf("could not create subscription %s: %w", subName, err)
		}
		logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
	}
	return subName, nil
}

// NewDeliveryConsumer ensures the subscription and returns a pipeline consumer
// reading from it.
func NewDeliveryConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	subName, err := EnsureSubscription(ctx, cfg, psClient, logger)
	if err != nil {
		return nil, err
	}
	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subName), psClient, logger,
	)
}

func resourceName(project, kind, id string) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, kind, id)
}
