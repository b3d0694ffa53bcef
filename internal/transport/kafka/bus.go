package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// SubjectHeader carries the event topic (market.events.<op>) on every message.
const SubjectHeader = "subject"

// messageKey keeps every ledger event on one partition, in the order they were published.
var messageKey = []byte("ledger")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Bus publishes ledger events to a single Kafka topic.
type Bus struct {
	writer  messageWriter
	timeout time.Duration
}

func NewBus(brokers []string, topic string) *Bus {
	return newBus(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func newBus(w messageWriter) *Bus {
	return &Bus{writer: w, timeout: 5 * time.Second}
}

func (b *Bus) Publish(topic string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:     messageKey,
		Value:   data,
		Headers: []kafka.Header{{Key: SubjectHeader, Value: []byte(topic)}},
	})
}

func (b *Bus) Close() error {
	return b.writer.Close()
}
