package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/pipesim/internal/mq"
)

// NewEventsCmd создаёт группу команд для потока событий.
func NewEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the live event stream",
	}

	cmd.AddCommand(
		newEventsTailCmd(clientFn, outputFn),
		newEventsEmitCmd(clientFn, outputFn),
	)

	return cmd
}

func newEventsTailCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var amqpURL string
	var exchange string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print all events (from the API or from RabbitMQ)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if amqpURL == "" {
				return clientFn().Watch(cmd.Context(), printAll(out))
			}
			return tailAMQP(cmd.Context(), amqpURL, mq.Exchange(exchange), out)
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp", "", "Read from RabbitMQ instead of the API (amqp:// URL)")
	cmd.Flags().StringVar(&exchange, "exchange", string(mq.DefaultExchange), "RabbitMQ exchange with pipeline events")

	return cmd
}

func newEventsEmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "emit",
		Short: "Publish a manual test event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().EmitTest(); err != nil {
				return err
			}
			outputFn().Success("Test event emitted")
			return nil
		},
	}
}

// tailAMQP читает события из обменника до отмены ctx.
func tailAMQP(ctx context.Context, url string, exchange mq.Exchange, out *Output) error {
	// Логи mq не смешиваются с выводом событий
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Exchange: exchange,
		Handler: func(ctx context.Context, msg *mq.Message) error {
			ev, err := mq.ParsePayload[LogEvent](msg)
			if err != nil {
				return err
			}

			event := "log"
			if msg.Type == mq.MessageTypePipelineDone {
				event = "pipeline_done"
			}

			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			out.Event(StreamMessage{Event: event, Data: data}, ev)
			return nil
		},
	})

	out.Success(fmt.Sprintf("Listening on exchange %s", exchange))
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
