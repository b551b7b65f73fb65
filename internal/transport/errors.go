package transport

import (
	"errors"
	"fmt"
)

// Ошибки транспорта.
var (
	// ErrTransport — сетевая ошибка или ошибка создания запроса.
	ErrTransport = errors.New("transport failed")

	// ErrRemoteStatus — удалённый сервис вернул статус вне 2xx.
	ErrRemoteStatus = errors.New("remote returned error status")

	// ErrInvalidResponse — тело ответа не JSON-объект.
	ErrInvalidResponse = errors.New("invalid response body")

	// ErrBaseURL — не задан или некорректен базовый URL.
	ErrBaseURL = errors.New("invalid base url")
)

// RemoteError — ответ удалённого сервиса со статусом вне 2xx.
type RemoteError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap позволяет errors.Is(err, ErrRemoteStatus).
func (e *RemoteError) Unwrap() error {
	return ErrRemoteStatus
}
