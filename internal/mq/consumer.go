package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение из обменника.
// Ошибка только логируется: tap-очередь без подтверждений.
type Handler func(ctx context.Context, msg *Message) error

// errSessionLost — брокер закрыл канал доставок.
var errSessionLost = errors.New("deliveries channel closed")

// Consumer читает поток событий через временную tap-очередь.
//
// Каждая сессия объявляет свою очередь: exclusive-очередь умирает
// вместе с соединением, поэтому после reconnect её нужно создать
// заново. События, опубликованные между сессиями, теряются.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	exchange Exchange
	handler  Handler

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Exchange — обменник событий (default: DefaultExchange).
	Exchange Exchange

	Handler Handler
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("exchange", exchange),
		exchange: exchange,
		handler:  cfg.Handler,
	}
}

// Start читает сообщения до отмены ctx или вызова Stop.
// Обрыв соединения не завершает Start: consumer ждёт reconnect.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("tap session ended, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// Stop прерывает Start.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// session объявляет tap-очередь и раздаёт сообщения до её потери.
func (c *Consumer) session(ctx context.Context) error {
	var deliveries <-chan amqp.Delivery

	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		queue, err := declareTapQueue(ch, c.exchange)
		if err != nil {
			return err
		}

		// auto-ack: очередь временная, повторная доставка не нужна
		deliveries, err = ch.Consume(queue, "", true, true, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queue, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("tap consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errSessionLost
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch декодирует доставку и передаёт её Handler.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("skipping undecodable message", "error", err, "body", string(d.Body))
		return
	}

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.Error("handler failed", "message_id", msg.ID, "type", msg.Type, "error", err)
	}
}

// ParsePayload декодирует payload полученного сообщения в T.
// После json.Unmarshal в Message payload — это map[string]any.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return out, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
