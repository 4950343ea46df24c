package invalidation_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/invalidation"
)

// setupPubsub starts an in-process Pub/Sub fake with one topic and subscription.
func setupPubsub(t *testing.T, projectID, topicID, subID string) (*pubsub.Client, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
	t.Cleanup(topic.Stop)

	_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	return client, topic
}

func TestGooglePubsubConsumer_DrivesListener(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client, topic := setupPubsub(t, "test-project", "cache-invalidation", "cache-invalidation-sub")

	consumer, err := invalidation.NewGooglePubsubConsumer(ctx, invalidation.NewGooglePubsubConsumerDefaults("cache-invalidation-sub"), client, zerolog.Nop())
	require.NoError(t, err)

	receipts := &mockFamily{name: "receipts", outcome: cache.OutcomeFetched}
	listener, err := invalidation.NewListener(consumer, zerolog.Nop(), receipts)
	require.NoError(t, err)
	require.NoError(t, listener.Start(ctx))

	res := topic.Publish(ctx, &pubsub.Message{
		Attributes: map[string]string{"family": "receipts", "action": "refresh", "year": "2023"},
	})
	_, err = res.Get(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		receipts.mu.Lock()
		defer receipts.mu.Unlock()
		return len(receipts.loads) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, listener.Stop(ctx))
	select {
	case <-consumer.Done():
	default:
		t.Fatal("consumer should be done after Stop")
	}

	receipts.mu.Lock()
	defer receipts.mu.Unlock()
	assert.Equal(t, loadCall{partition: 2023, force: true}, receipts.loads[0])
}

func TestNewGooglePubsubConsumer_MissingSubscription(t *testing.T) {
	ctx := context.Background()
	client, _ := setupPubsub(t, "test-project", "topic", "sub")

	_, err := invalidation.NewGooglePubsubConsumer(ctx, invalidation.NewGooglePubsubConsumerDefaults("nope"), client, zerolog.Nop())
	assert.Error(t, err)
}
