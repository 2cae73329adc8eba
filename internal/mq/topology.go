package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// DefaultExchange — fanout-обменник событий по умолчанию.
const DefaultExchange Exchange = "pipesim.events"

// Routing keys. Для fanout они информативны: по ним потребитель
// может отличить тип события без разбора тела.
const (
	RoutingKeyLog  RoutingKey = "log"
	RoutingKeyDone RoutingKey = "pipeline_done"
)

// SetupTopology объявляет обменник событий.
//
// Обменник fanout и durable: каждый подключённый потребитель получает
// свою копию события, а сами сообщения transient, как и события в памяти.
func SetupTopology(ctx context.Context, conn *Connection, exchange Exchange) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return declareExchange(ch, exchange)
	})
}

func declareExchange(ch *amqp.Channel, exchange Exchange) error {
	err := ch.ExchangeDeclare(
		string(exchange), // name
		"fanout",         // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// declareTapQueue создаёт временную очередь, привязанную к exchange.
//
// Очередь exclusive и auto-delete с именем от брокера: она живёт,
// пока живо соединение, и не копит события без слушателя.
func declareTapQueue(ch *amqp.Channel, exchange Exchange) (string, error) {
	if err := declareExchange(ch, exchange); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare(
		"",    // name (генерирует брокер)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare tap queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", string(exchange), false, nil); err != nil {
		return "", fmt.Errorf("bind queue %s to %s: %w", q.Name, exchange, err)
	}

	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(exchange Exchange) string {
	return fmt.Sprintf(`
  pipesim RabbitMQ Topology:

    %s (fanout, durable)
    └── <server-named>, exclusive, auto-delete
            Consumer: pipesim-cli events tail --amqp
`, exchange)
}
