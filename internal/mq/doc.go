// Package mq зеркалирует события pipeline в RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление fanout-обменника и временных очередей
//   - publisher.go  — публикация событий
//   - relay.go      — мост Broadcaster → Publisher
//   - consumer.go   — чтение событий из обменника (CLI)
//
// Типы сообщений:
//   - pipeline.log  — старт или завершение стадии
//   - pipeline.done — run завершён
//
// Брокер необязателен: без amqp.url сервер работает только
// с SSE и WebSocket.
package mq
