// Package notify dispatches lifecycle notifications to Kafka. Delivery is
// best effort: encoding and transport failures are logged, never returned.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"experthub/internal/lifecycle"
	"experthub/internal/platform/kafka"
)

// KafkaNotifier publishes lifecycle notifications to a single topic, keyed
// by CV so consumers see each CV's events in order.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaNotifier(producer *kafka.Producer, topic string, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event lifecycle.Notification) {
	payload, err := json.Marshal(event)
	if err != nil {
		if n.logger != nil {
			n.logger.ErrorContext(ctx, "failed to encode lifecycle notification",
				"kind", event.Kind,
				"cv_id", event.CVID,
				"error", err.Error(),
			)
		}
		return
	}
	n.producer.Publish(ctx, n.topic, []byte(event.CVID.String()), payload)
}
