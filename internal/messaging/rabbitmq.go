package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	maxConnectAttempts = 5
	connectDelay       = 5 * time.Second
)

// Publisher публикует сообщения в очередь.
type Publisher interface {
	Publish(ctx context.Context, payload any, correlationID string) error
}

// DeliveryHandler обрабатывает сообщение. true означает ack, false - nack с возвратом в очередь.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, msg amqp091.Delivery) bool
}

// Connect подключается к RabbitMQ с ограниченным числом попыток.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*amqp091.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			logger.Info("RabbitMQ connected successfully", zap.Int("attempt", attempt))
			return conn, nil
		}
		lastErr = err
		logger.Warn("Failed to connect to RabbitMQ", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == maxConnectAttempts {
			break
		}

		timer := time.NewTimer(connectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("rabbitmq connect after %d attempts: %w", maxConnectAttempts, lastErr)
}

func declareQueue(ch *amqp091.Channel, name string) (amqp091.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
}

// RabbitPublisher публикует JSON в очередь через exchange по умолчанию.
type RabbitPublisher struct {
	ch     *amqp091.Channel
	queue  string
	logger *zap.Logger
	mu     sync.Mutex
}

var _ Publisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher открывает канал и объявляет очередь назначения.
func NewRabbitPublisher(conn *amqp091.Connection, queue string, logger *zap.Logger) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for publisher: %w", err)
	}
	if _, err := declareQueue(ch, queue); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &RabbitPublisher{
		ch:     ch,
		queue:  queue,
		logger: logger.Named("RabbitPublisher").With(zap.String("queue", queue)),
	}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, payload any, correlationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return errors.New("publisher channel is closed")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // exchange по умолчанию
		p.queue, // routing key = имя очереди
		false,   // mandatory
		false,   // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			CorrelationId: correlationID,
			Body:          body,
			DeliveryMode:  amqp091.Persistent,
			Timestamp:     time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debug("Message published", zap.String("correlation_id", correlationID))
	return nil
}

// Close закрывает канал. Повторный вызов безопасен.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

// ConsumerConfig - параметры потребителя очереди.
type ConsumerConfig struct {
	Queue    string
	Tag      string
	Prefetch int
}

// Consume читает очередь до отмены ctx или закрытия канала брокером.
// Подтверждение ручное: результат HandleDelivery решает ack или nack.
func Consume(ctx context.Context, conn *amqp091.Connection, cfg ConsumerConfig, handler DeliveryHandler, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel for consumer: %w", err)
	}
	defer ch.Close()

	q, err := declareQueue(ch, cfg.Queue)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}
	logger.Info("Queue declared", zap.String("queue", q.Name), zap.Int("messages", q.Messages), zap.Int("consumers", q.Consumers))

	prefetch := cfg.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(q.Name, cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer on %s: %w", q.Name, err)
	}
	logger.Info("Consumer started, waiting for messages...", zap.String("queue", q.Name))

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn("Consumer channel closed by RabbitMQ", zap.String("queue", q.Name))
				return errors.New("consumer channel closed")
			}
			if handler.HandleDelivery(ctx, msg) {
				if ackErr := msg.Ack(false); ackErr != nil {
					logger.Error("Failed to ack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(ackErr))
				}
			} else if nackErr := msg.Nack(false, !msg.Redelivered); nackErr != nil {
				logger.Error("Failed to nack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(nackErr))
			}
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping consumer", zap.String("queue", q.Name))
			return nil
		}
	}
}
