// Package cli реализует инструмент командной строки pipesim.
//
// # Обзор
//
// CLI — клиентская утилита для pipesim API. Работает через HTTP
// и WebSocket и не импортирует серверные пакеты. Исключение —
// events tail --amqp: он читает события напрямую из RabbitMQ
// через internal/mq.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Ответы — простой JSON без обёрток,
// ошибки — {"error": {"code", "message"}}.
//
//	client := cli.NewClient("http://localhost:5000")
//	id, err := client.StartRun(nil)
//
// Subscribe/Watch подключаются к /ws и читают кадры
// {"event": "log" | "pipeline_done", "data": {...}}.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: pipesim run list --json | jq .
//
// ## Commands
//
//   - run: list, start [--watch], show, watch
//   - events: tail [--amqp], emit
//   - health
//
// Каждая группа создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
