package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Displacement/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeEvents — topic exchange событий pipeline.
const ExchangeEvents Exchange = "displacement.events"

// Шаблоны привязки.
const (
	// BindAll — все события.
	BindAll RoutingKey = "#"

	// BindSteps — только step.* события.
	BindSteps RoutingKey = "step.*"

	// BindRuns — только run.* события.
	BindRuns RoutingKey = "run.*"
)

// RoutingKeyFor возвращает routing key события: его тип.
func RoutingKeyFor(t domain.EventType) RoutingKey {
	return RoutingKey(t)
}

// SetupTopology объявляет exchange событий.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, declareExchange)
}

// declareExchange объявляет durable topic exchange.
func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeEvents), // name
		amqp.ExchangeTopic,     // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

// TapQueue возвращает функцию объявления временной очереди,
// привязанной к ExchangeEvents по шаблонам patterns.
//
// Очередь exclusive и auto-delete: живёт, пока жив consumer,
// и объявляется заново после переподключения.
func TapQueue(patterns ...RoutingKey) func(ch *amqp.Channel) (string, error) {
	if len(patterns) == 0 {
		patterns = []RoutingKey{BindAll}
	}

	return func(ch *amqp.Channel) (string, error) {
		if err := declareExchange(ch); err != nil {
			return "", err
		}

		q, err := ch.QueueDeclare(
			"",    // name (server-generated)
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return "", fmt.Errorf("declare tap queue: %w", err)
		}

		for _, p := range patterns {
			if err := ch.QueueBind(q.Name, string(p), string(ExchangeEvents), false, nil); err != nil {
				return "", fmt.Errorf("bind %s to %s: %w", q.Name, p, err)
			}
		}

		return q.Name, nil
	}
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Displacement RabbitMQ Topology:

    displacement.events (topic)
    ├── run.started / run.finished     [run.*]
    └── step.progress / step.result / step.failed   [step.*]
            Consumers: cli events (exclusive tap queues)
  `
}
