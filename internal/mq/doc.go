// Package mq публикует события pipeline в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchange и временных очередей
//   - publisher.go  — публикация событий
//   - forwarder.go  — неблокирующий мост Runner → Publisher
//   - consumer.go   — потребление событий (cli events)
//
// Exchange:
//   - displacement.events (topic) — routing key равен типу события:
//     run.started, step.progress, step.result, step.failed, run.finished
package mq
