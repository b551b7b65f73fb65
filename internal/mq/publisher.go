package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Displacement/internal/domain"
)

// Message — конверт события в очереди.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события.
	Type domain.EventType `json:"type"`

	// Payload — событие.
	Payload any `json:"payload"`

	// Timestamp — время публикации.
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMessage упаковывает событие в Message.
func NewEventMessage(ev domain.Event) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      ev.Type,
		Payload:   ev,
		Timestamp: time.Now(),
	}
}

// Publisher публикует события в ExchangeEvents.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishEvent публикует событие с routing key = тип события.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	return p.Publish(ctx, RoutingKeyFor(ev.Type), NewEventMessage(ev))
}

// Publish публикует сообщение в ExchangeEvents.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeEvents), // exchange
			string(routingKey),     // routing key
			false,                  // mandatory
			false,                  // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient, // события не переживают рестарт брокера
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", routingKey, err)
		}

		p.logger.Debug("published event",
			"routing_key", routingKey,
			"message_id", msg.ID,
		)
		return nil
	})
}
