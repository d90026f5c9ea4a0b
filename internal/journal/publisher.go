// Package journal ships engine outcomes to Kafka and reads them back. The
// journal keeps the raw error text that users only see summarized.
package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"taskflow/internal/engine"
	"taskflow/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the producing half of *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements engine.Journal.
type Publisher struct {
	w    MessageWriter
	user string
}

// NewPublisher builds an async Kafka producer for topic. user tags every
// message so several accounts can share a topic.
func NewPublisher(ctx context.Context, brokers []string, topic, user string) *Publisher {
	w := newWriter(ctx, brokers, topic)
	logger.Debug(ctx, "Journal producer initialized", "topic", topic, "brokers", brokers)
	return NewPublisherWriter(w, user)
}

// newWriter hashes message keys onto partitions.
func newWriter(ctx context.Context, brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn(ctx, "Journal delivery failed", "messages", len(msgs), "error", err)
			}
		},
	}
}

// NewPublisherWriter wraps an existing writer.
func NewPublisherWriter(w MessageWriter, user string) *Publisher {
	return &Publisher{w: w, user: user}
}

// Record publishes o. Messages for one task share a key and so a partition,
// which keeps them in order.
func (p *Publisher) Record(ctx context.Context, o engine.Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	key := o.TaskID
	if key == "" {
		key = o.Op
	}
	msg := kafka.Message{Key: []byte(p.user + ":" + key), Value: payload}
	if p.user != "" {
		msg.Headers = []kafka.Header{{Key: userHeader, Value: []byte(p.user)}}
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error { return p.w.Close() }

const userHeader = "user"

// EnsureTopic creates topic if the cluster allows it. Failures are logged and
// otherwise ignored; the topic may already exist or be auto-created.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int) {
	if len(brokers) == 0 {
		return
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrl, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrl.Close()
	if err := ctrl.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: partitions, ReplicationFactor: 1}); err != nil {
		logger.Debug(ctx, "Kafka create topic failed", "topic", topic, "error", err)
		return
	}
	logger.Debug(ctx, "Kafka topic ensured", "topic", topic, "partitions", partitions)
}
