package infra

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher writes order events to a Kafka topic behind a circuit
// breaker, so a broker outage fails fast instead of stalling the workers.
type EventPublisher struct {
	writer MessageWriter
	cb     *CircuitBreaker
}

// NewKafkaWriter builds the writer for topic. Keys are order ids, so the
// hash balancer keeps one order's events in a single partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewEventPublisher(writer MessageWriter, cb *CircuitBreaker) *EventPublisher {
	return &EventPublisher{writer: writer, cb: cb}
}

// Publish sends one message. Returns ErrCircuitOpen without touching the
// broker while the breaker is open.
func (p *EventPublisher) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	msg := kafka.Message{Key: []byte(key), Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return p.cb.Execute(func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
}

// Available reports whether the breaker currently lets calls through.
func (p *EventPublisher) Available() bool {
	return p.cb.State() != CBOpen
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
