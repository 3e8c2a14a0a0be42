//go:build integration

package registryservice_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-crowdship-push/internal/metrics"
	fsStore "github.com/tinywideclouds/go-crowdship-push/internal/storage/firestore"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/registryservice"
	"github.com/tinywideclouds/go-crowdship-push/registryservice/config"
)

type recordingDispatcher struct {
	mu         sync.Mutex
	callCount  int
	lastTokens []string
	lastData   map[string]string
}

func (m *recordingDispatcher) Dispatch(_ context.Context, tokens []string, _ dispatch.Content, data map[string]string) (string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.lastTokens = tokens
	m.lastData = data
	return "success", nil, nil
}

func (m *recordingDispatcher) snapshot() (int, []string, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount, m.lastTokens, m.lastData
}

func TestRegistryService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	logger := newTestLogger()
	projectID := "test-project-registry"

	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	store := fsStore.NewFirestoreStore(fsClient)

	t.Run("Register -> Publish -> Dispatch", func(t *testing.T) {
		topicID := "delivery-" + uuid.NewString()
		subID := topicID + "-sub"
		createTopic(t, ctx, psClient, projectID, topicID)

		cfg := &config.Config{ProjectID: projectID, ListenAddr: ":0", TopicID: topicID, SubscriptionID: subID, NumPipelineWorkers: 2}
		consumer, err := registryservice.NewDeliveryConsumer(ctx, cfg, psClient, logger)
		require.NoError(t, err)

		android := &recordingDispatcher{}
		svc, err := registryservice.New(cfg, consumer,
			map[push.Platform]dispatch.Dispatcher{push.PlatformAndroid: android}, store, metrics.New(), logger)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		require.NoError(t, store.Register(ctx, "courier-1", dispatch.Device{Token: "android-token-999", Platform: push.PlatformAndroid}))

		payload := []byte(`{"userId":"courier-1","title":"New booking","type":"booking_new","bookingId":"b7"}`)
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			count, _, _ := android.snapshot()
			return count == 1
		}, 15*time.Second, 100*time.Millisecond)

		_, tokens, data := android.snapshot()
		assert.Equal(t, []string{"android-token-999"}, tokens)
		assert.Equal(t, map[string]string{"type": "booking_new", "bookingId": "b7"}, data)
	})

	t.Run("Poison Pill Reaches Dead Letter Topic", func(t *testing.T) {
		runID := uuid.NewString()
		topicID := "delivery-" + runID
		dlqTopicID := "delivery-dlq-" + runID
		dlqSubID := dlqTopicID + "-sub"

		createTopic(t, ctx, psClient, projectID, dlqTopicID)
		_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
			Name:  fmt.Sprintf("projects/%s/subscriptions/%s", projectID, dlqSubID),
			Topic: fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID),
		})
		require.NoError(t, err)

		createTopic(t, ctx, psClient, projectID, topicID)
		mainSubID := topicID + "-sub"
		_, err = psClient.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
			Name:  fmt.Sprintf("projects/%s/subscriptions/%s", projectID, mainSubID),
			Topic: fmt.Sprintf("projects/%s/topics/%s", projectID, topicID),
			DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
				DeadLetterTopic:     fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID),
				MaxDeliveryAttempts: registryservice.MaxDeliveryAttempts,
			},
			RetryPolicy: &pubsubpb.RetryPolicy{MinimumBackoff: &durationpb.Duration{Seconds: 1}},
		})
		require.NoError(t, err)

		cfg := &config.Config{
			ProjectID:              projectID,
			ListenAddr:             ":0",
			SubscriptionID:         mainSubID,
			SubscriptionDLQTopicID: dlqTopicID,
			NumPipelineWorkers:     2,
		}
		consumer, err := registryservice.NewDeliveryConsumer(ctx, cfg, psClient, logger)
		require.NoError(t, err)

		android := &recordingDispatcher{}
		svc, err := registryservice.New(cfg, consumer,
			map[push.Platform]dispatch.Dispatcher{push.PlatformAndroid: android}, store, nil, logger)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		poisonPayload := []byte(`{"this is not valid json"`)
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: poisonPayload}).Get(ctx)
		require.NoError(t, err)

		var received *pubsub.Message
		rctx, rcancel := context.WithTimeout(ctx, 30*time.Second)
		defer rcancel()
		err = psClient.Subscriber(dlqSubID).Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			received = msg
			rcancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("DLQ receive failed: %v", err)
		}

		require.NotNil(t, received, "poison pill did not reach the dead letter topic")
		assert.Equal(t, poisonPayload, received.Data)

		count, _, _ := android.snapshot()
		assert.Equal(t, 0, count)
	})
}

func createTopic(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})
}
