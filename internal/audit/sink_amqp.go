package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel used by AMQPSink.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as persistent JSON messages to a queue.
type AMQPSink struct {
	mu    sync.Mutex
	pub   Publisher
	queue string
	conn  *amqp.Connection
}

// NewAMQPSink wraps an existing publisher.
func NewAMQPSink(pub Publisher, queue string) *AMQPSink {
	return &AMQPSink{pub: pub, queue: queue}
}

// DialAMQP connects to the broker and declares the durable queue.
func DialAMQP(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("audit: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit: amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit: amqp queue declare: %w", err)
	}
	return &AMQPSink{pub: ch, queue: queue, conn: conn}, nil
}

// Write implements Sink.
func (s *AMQPSink) Write(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Type:         string(event.Action),
		Body:         body,
	}
	// amqp channels are not safe for concurrent publishing.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pub.PublishWithContext(ctx, "", s.queue, false, false, msg); err != nil {
		return fmt.Errorf("audit: amqp publish: %w", err)
	}
	return nil
}

// Close closes the broker connection when the sink owns one.
func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
