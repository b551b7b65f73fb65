package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Displacement/internal/domain"
)

// Handler — обработчик события.
// Ошибка обработчика логируется; сообщение всё равно подтверждается:
// события — уведомления, повторная доставка не нужна.
type Handler func(ctx context.Context, ev domain.Event) error

// DeclareFunc объявляет очередь и возвращает её имя.
type DeclareFunc func(ch *amqp.Channel) (string, error)

// Consumer потребляет события из очереди RabbitMQ.
type Consumer struct {
	conn    *Connection
	logger  *slog.Logger
	declare DeclareFunc
	handler Handler
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Declare — объявление очереди (default: TapQueue(BindAll)).
	// Вызывается при каждом (пере)подключении.
	Declare DeclareFunc

	// Handler — обработчик событий.
	Handler Handler
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	declare := cfg.Declare
	if declare == nil {
		declare = TapQueue(BindAll)
	}

	return &Consumer{
		conn:    conn,
		logger:  logger,
		declare: declare,
		handler: cfg.Handler,
	}
}

// Start потребляет события до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		queue, deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started", "queue", queue)
			if err := c.process(ctx, deliveries); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", queue)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Reconnected():
		}
	}
}

// subscribe объявляет очередь и начинает потребление.
func (c *Consumer) subscribe() (string, <-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return "", nil, ErrNoChannel
	}

	queue, err := c.declare(ch)
	if err != nil {
		return "", nil, err
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return "", nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	return queue, deliveries, nil
}

// process обрабатывает сообщения до закрытия канала или отмены ctx.
func (c *Consumer) process(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handle(ctx, raw)
		}
	}
}

// handle декодирует и обрабатывает одно сообщение.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	ev, err := DecodeEvent(raw.Body)
	if err != nil {
		c.logger.Error("failed to decode event", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, ev); err != nil {
		c.logger.Warn("handler failed", "type", ev.Type, "run_id", ev.RunID, "error", err)
	}
	raw.Ack(false)
}

// DecodeEvent разбирает тело сообщения в событие pipeline.
func DecodeEvent(body []byte) (domain.Event, error) {
	var envelope struct {
		Type    domain.EventType `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.Event{}, fmt.Errorf("unmarshal message: %w", err)
	}

	switch envelope.Type {
	case domain.EventRunStarted, domain.EventStepProgress, domain.EventStepResult,
		domain.EventStepFailed, domain.EventRunFinished:
	default:
		return domain.Event{}, fmt.Errorf("%w: %q", ErrUnexpectedMessage, envelope.Type)
	}

	var ev domain.Event
	if err := json.Unmarshal(envelope.Payload, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return ev, nil
}
