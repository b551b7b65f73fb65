// Package telemetry обеспечивает наблюдаемость pipeline.
//
// Включает:
//   - logging.go — structured logging через slog с атрибутами run_id, job_name, step
//   - metrics.go — Prometheus метрики, собираемые из событий pipeline
//
// Сервисы пишут логи в едином формате с атрибутом service
// и экспортируют метрики на /metrics endpoint.
package telemetry
