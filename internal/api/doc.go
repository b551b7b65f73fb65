// Package api содержит HTTP API сервер pipeline.
//
// Структура:
//   - handler.go     — Handler с DI (runner, архив, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, recovery, CORS)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects
//   - run_handler.go — загрузка файла, снимок текущего run, архив
//   - step_handler.go — каталог шагов
//
// Одновременно выполняется только один run: загрузка во время
// выполнения отвечает 409 CONFLICT.
package api
