//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"experthub/internal/lifecycle"
	"experthub/internal/platform/config"
	"experthub/internal/platform/kafka"
	id "experthub/pkg/domain"
	"experthub/pkg/testutil/containers"
)

func TestKafkaNotifierRoundTrip(t *testing.T) {
	broker := containers.NewRedpandaContainer(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	const topic = "experthub.lifecycle.test"

	producer, err := kafka.NewProducer(config.KafkaConfig{
		Brokers: []string{broker.Broker},
		Topic:   topic,
	}, log)
	require.NoError(t, err)
	require.NotNil(t, producer)
	defer producer.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, producer.EnsureTopic(ctx, topic))
	require.NoError(t, producer.EnsureTopic(ctx, topic), "creating an existing topic must be tolerated")

	notifier := NewKafkaNotifier(producer, topic, log)

	cvID := id.CVID(uuid.New())
	sent := lifecycle.Notification{
		Kind:       lifecycle.NotificationCVLocked,
		CVID:       cvID,
		UserID:     id.UserID(uuid.New()),
		OrgID:      id.OrgID(uuid.New()),
		OccurredAt: time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC),
	}
	notifier.Notify(ctx, sent)
	require.NoError(t, producer.Close(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, cvID.String(), string(records[0].Key))

	var got lifecycle.Notification
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, sent.Kind, got.Kind)
	assert.Equal(t, sent.CVID, got.CVID)
	assert.True(t, got.OccurredAt.Equal(sent.OccurredAt))
}
