package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/Displacement/internal/config"
	"github.com/shaiso/Displacement/internal/domain"
	"github.com/shaiso/Displacement/internal/mq"
)

// NewEventsCmd создаёт команду просмотра событий pipeline из RabbitMQ.
func NewEventsCmd(outputFn func() *Output, logger *slog.Logger) *cobra.Command {
	amqpURL := config.Load().RabbitMQURL
	if amqpURL == "" {
		amqpURL = mq.DefaultURL()
	}
	var patterns []string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream pipeline events from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			conn, err := mq.Dial(amqpURL, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			keys := make([]mq.RoutingKey, len(patterns))
			for i, p := range patterns {
				keys[i] = mq.RoutingKey(p)
			}

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Declare: mq.TapQueue(keys...),
				Handler: func(_ context.Context, ev domain.Event) error {
					if out.JSONMode() {
						out.JSON(ev)
					} else {
						out.Line(FormatEvent(ev))
					}
					return nil
				},
			})

			err = consumer.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&amqpURL, "rabbitmq-url", amqpURL, "RabbitMQ URL")
	cmd.Flags().StringSliceVar(&patterns, "filter", []string{string(mq.BindAll)}, "Routing key patterns (run.*, step.*, step.failed)")

	return cmd
}
