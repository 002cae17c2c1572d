// Package kafka publishes accepted features to a broker so downstream
// consumers can react without polling the object store. The delta artifact
// remains the durable hand-off; publishing is advisory.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flume-producer/internal/domain"
)

// Notifier produces accepted features to a Kafka topic.
// It implements ingest.DeltaNotifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
	clock  clockwork.Clock
}

// NewNotifier creates a Kafka producer for the configured delta topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger, clock clockwork.Clock) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger, clock: clock}
}

// NotifyDelta serializes and publishes the accepted features in a single
// WriteMessages call. Messages are keyed by feature id so downstream
// consumers can dedup on at-least-once redelivery.
func (n *Notifier) NotifyDelta(ctx context.Context, src domain.Source, features []domain.Feature) error {
	if len(features) == 0 {
		return nil
	}
	publishedAt := n.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(features))
	for i := range features {
		msg, err := serializeToMessage(src, features[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return n.writer.WriteMessages(ctx, msgs...)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a feature into a Kafka message.
func serializeToMessage(src domain.Source, feat domain.Feature, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(feat)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(feat.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(src.Name)},
			{Key: "observed_at", Value: []byte(src.ObservationTimestamp(feat))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
