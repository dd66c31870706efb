package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/xaenox/moodmate/internal/models"
	"go.uber.org/zap"
)

// amqpPublisher is the channel operation used by AMQPSink.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes every notification as JSON on a topic exchange. Routing
// keys are notify.<channel> for broadcasts and notify.direct otherwise.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
	logger   *zap.Logger
}

func NewAMQPSink(url, exchange string, logger *zap.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare %s: %w", exchange, err)
	}

	logger.Info("AMQP notifications enabled", zap.String("exchange", exchange))
	s := newAMQPSink(ch, exchange, logger)
	s.conn = conn
	return s, nil
}

func newAMQPSink(ch amqpPublisher, exchange string, logger *zap.Logger) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange, logger: logger}
}

func (s *AMQPSink) Name() string {
	return "amqp"
}

func routingKey(n *models.Notification) string {
	if n.IsDirect() {
		return "notify.direct"
	}
	return "notify." + string(n.Channel)
}

func (s *AMQPSink) Deliver(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	s.mu.Lock()
	defer s.mu.Unlock()

	key := routingKey(n)
	err = s.ch.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	s.logger.Debug("published", zap.String("key", key), zap.String("exchange", s.exchange))
	return nil
}

func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
