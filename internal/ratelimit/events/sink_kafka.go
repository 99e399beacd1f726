package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const flushTimeout = 5 * time.Second

// KafkaSink publishes events to a Kafka topic for downstream alerting.
// Produces are fully asynchronous: a broker outage costs events, never
// request latency.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink connects a producer to the given brokers.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to encode ratelimit event", "event_id", event.ID, "error", err)
		}
		return
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Source),
		Value: payload,
	}
	// Fire-and-forget: the callback only records the loss.
	s.client.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil && s.logger != nil {
			s.logger.Warn("dropped ratelimit event", "event_id", event.ID, "error", err)
		}
	})
}

// Close flushes buffered records and releases the producer.
func (s *KafkaSink) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	_ = s.client.Flush(ctx)
	s.client.Close()
}
