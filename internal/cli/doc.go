// Package cli реализует инструмент командной строки Displacement.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - локально (run) — сам выполняет pipeline, вызывая удалённый сервис
//   - через API (submit, status, history, steps) — HTTP-клиент к displacement-api
//
// Команда events читает события pipeline из RabbitMQ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Displacement API. Инкапсулирует загрузку файла
// (multipart), парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок (APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	run, err := client.Submit("Main_St.las")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, прогресс и сообщения — в stderr.
// Это позволяет использовать pipe: displacement status --json | jq .
//
// ## Commands
//
// Каждая команда создаётся через фабричную функцию (NewSubmitCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
