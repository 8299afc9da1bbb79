// Package bus provides the Kafka producer and consumer used to move
// commands and domain events. Messages are keyed by aggregate id so every
// message for one aggregate lands on the same partition and is consumed in
// order.
package bus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one bus message as seen by a consumer.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64

	raw kafka.Message
}

// Producer publishes keyed messages to a single topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for the topic. The hash balancer pins a
// key to one partition.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Publish sends one message under the given partition key.
func (p *Producer) Publish(ctx context.Context, key string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
}

func (p *Producer) Close() error { return p.writer.Close() }

// Consumer reads a topic within a consumer group. Offsets are committed
// explicitly after a message is fully handled, giving at-least-once
// delivery.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a consumer-group reader starting at the earliest
// uncommitted offset.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     time.Second,
	})}
}

// Fetch blocks until the next message or context cancellation. It does not
// commit the offset.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		raw:       msg,
	}, nil
}

// Commit marks the message consumed.
func (c *Consumer) Commit(ctx context.Context, msg Message) error {
	return c.reader.CommitMessages(ctx, msg.raw)
}

func (c *Consumer) Close() error { return c.reader.Close() }
