// Package kafka publishes wallet notifications to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/warp/virtual-wallet/notify"
)

const batchTimeout = 10 * time.Millisecond

type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds an asynchronous writer. Publish returns once the
// message is queued; delivery failures are logged by the completion hook.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	logger = logger.With("component", "kafka_publisher", "topic", topic)
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: batchTimeout,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Warn("kafka delivery failed", "messages", len(messages), "error", err)
				}
			},
		},
	}
}

// Publish queues one message keyed by the notified user, so every event for
// a user lands on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, routingKey string, event notify.Event) error {
	msg, err := Message(routingKey, event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes queued messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message encodes an event. The routing key travels as the "type" header.
func Message(routingKey string, event notify.Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.User),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(routingKey)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
		Time: event.OccurredAt,
	}, nil
}
