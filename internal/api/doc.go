// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (контроллер runs, шина событий, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, CORS)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /api/pipelines, /api/health, /api/emit_test
//   - events_handler.go   — потоки событий: SSE (/api/events) и WebSocket (/ws)
//
// Формат событий в потоках:
//
//	log           → {"pid": "...", "stage": "...", "msg": "..."}
//	pipeline_done → {"pid": "..."}
package api
