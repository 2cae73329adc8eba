// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики runs, стадий и событий
//   - tracing.go — OpenTelemetry трейсинг стадий
//
// Метрики экспортируются на /metrics endpoint.
package telemetry
