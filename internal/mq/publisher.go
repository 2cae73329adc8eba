package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/pipesim/internal/domain"
)

// MessageType — тип сообщения в обменнике.
type MessageType string

// Типы сообщений.
const (
	MessageTypeLog          MessageType = "pipeline.log"
	MessageTypePipelineDone MessageType = "pipeline.done"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn     *Connection
	exchange Exchange
	logger   *slog.Logger
}

// NewPublisher создаёт новый Publisher для обменника событий.
func NewPublisher(conn *Connection, exchange Exchange, logger *slog.Logger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка, тот же wire-формат, что в SSE и WebSocket.
	Payload any `json:"payload"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// MessageFromEvent конвертирует событие в сообщение и routing key.
func MessageFromEvent(ev domain.Event) (*Message, RoutingKey) {
	msgType, key := MessageTypeLog, RoutingKeyLog
	if ev.Type == domain.EventTypePipelineDone {
		msgType, key = MessageTypePipelineDone, RoutingKeyDone
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   ev.Payload(),
		Timestamp: ts,
	}, key
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(p.exchange), // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient, // события эфемерны и в памяти
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", p.exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", p.exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishEvent публикует событие pipeline.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	msg, key := MessageFromEvent(ev)
	return p.Publish(ctx, key, msg)
}
