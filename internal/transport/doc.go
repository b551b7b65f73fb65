// Package transport отправляет шаги pipeline на удалённый сервис обработки.
//
// Каждый шаг — HTTP POST на BaseURL + endpoint шага. Cookie jar сохраняет
// cookies между шагами (credentials для cross-origin вызовов), ответ —
// JSON-объект. Любой статус вне 2xx — ошибка шага.
package transport
