//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "titulaciones/pkg/platform/audit"
	"titulaciones/pkg/platform/audit/store/kafka"
	"titulaciones/pkg/testutil/containers"
)

func TestKafkaStoreProducesKeyedJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := kafka.New(ctx, []string{rp.Broker}, kafka.WithTopic("audit-test"), kafka.WithPartitions(1, 1))
	require.NoError(t, err)
	defer store.Close()

	// A second New against the same topic must tolerate TopicAlreadyExists.
	again, err := kafka.New(ctx, []string{rp.Broker}, kafka.WithTopic("audit-test"), kafka.WithPartitions(1, 1))
	require.NoError(t, err)
	again.Close()

	require.NoError(t, store.Append(ctx, audit.Event{
		Subject: "ABC123",
		Action:  string(audit.EventCredentialIssued),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics("audit-test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)

	require.Equal(t, "ABC123", string(records[0].Key))
	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, string(audit.EventCredentialIssued), got.Action)
	require.Equal(t, audit.CategoryCompliance, got.Category)
}
