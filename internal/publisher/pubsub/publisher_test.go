// Package pubsub_test contains unit tests for the Pub/Sub publisher.
package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/publisher/pubsub"
)

func TestPublisher_PublishAndClose(t *testing.T) {
	ctx := context.Background()

	// Create a fake Pub/Sub server.
	srv := pstest.NewServer()
	defer srv.Close()

	// Connect to the fake server.
	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	require.NoError(t, err)
	defer conn.Close()

	// Create a client.
	client, err := gcppubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	// Create a topic.
	topic, err := client.CreateTopic(ctx, "job-events")
	require.NoError(t, err)

	// Create a subscription.
	sub, err := client.CreateSubscription(ctx, "sub-id", gcppubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher := pubsub.NewWithTopic(client, topic)

	// Publish a completion event.
	event := crawler.CompletionEvent{
		JobID:        "job-1",
		URL:          "https://example.com",
		Status:       crawler.JobStatusSucceeded,
		Task:         "summarize",
		PagesFetched: 3,
	}
	id, err := publisher.Publish(ctx, "job-events", event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// Receive the message.
	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c := make(chan *gcppubsub.Message, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *gcppubsub.Message) {
			c <- msg
			msg.Ack()
			cancel()
		})
	}()
	msg := <-c

	var got crawler.CompletionEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, crawler.JobStatusSucceeded, got.Status)

	// Close stops the topic and the client.
	err = publisher.Close()
	assert.NoError(t, err)
}
