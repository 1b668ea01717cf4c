// Package kafka wraps the franz-go client for best-effort lifecycle
// notifications. Delivery failures are logged, never surfaced to callers.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"experthub/internal/platform/config"
)

// Producer publishes notification records asynchronously.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer connects to the configured brokers. Returns nil when no
// brokers are configured so callers can treat notifications as optional.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID("experthub"),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// EnsureTopic creates the notification topic when it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, topic string) error {
	if p == nil {
		return nil
	}
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range resp.Sorted() {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Publish enqueues a record and returns immediately. The delivery callback
// logs failures.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) {
	if p == nil {
		return
	}
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("notification delivery failed",
				"topic", r.Topic,
				"key", string(r.Key),
				"error", err.Error(),
			)
		}
	})
}

// Close flushes pending records and releases the client.
func (p *Producer) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.client.Flush(ctx); err != nil {
		return err
	}
	p.client.Close()
	return nil
}
