package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/shaiso/Displacement/internal/domain"
)

// maxErrorBody — сколько байт тела ошибки попадает в RemoteError.
const maxErrorBody = 200

// HTTPDispatcher — реализация pipeline.Dispatcher поверх net/http.
//
// Таймауты не задаются на уровне клиента: их определяет context шага.
type HTTPDispatcher struct {
	baseURL *url.URL
	token   string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

// Config — конфигурация HTTPDispatcher.
type Config struct {
	// BaseURL — origin удалённого сервиса (например, "http://127.0.0.1:8000/api").
	BaseURL string

	// Token — bearer-токен (опционально).
	Token string

	// Headers — дополнительные заголовки для каждого запроса.
	Headers map[string]string

	// Client — HTTP-клиент (опционально; по умолчанию клиент с cookie jar,
	// не следующий редиректам).
	Client *http.Client

	// Logger
	Logger *slog.Logger
}

// NewHTTPDispatcher создаёт HTTPDispatcher.
func NewHTTPDispatcher(cfg Config) (*HTTPDispatcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrBaseURL)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrBaseURL, base.Scheme)
	}

	client := cfg.Client
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, CheckRedirect: noRedirect}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPDispatcher{
		baseURL: base,
		token:   cfg.Token,
		headers: cfg.Headers,
		client:  client,
		logger:  logger,
	}, nil
}

// BaseURL возвращает базовый URL удалённого сервиса.
func (d *HTTPDispatcher) BaseURL() string {
	return d.baseURL.String()
}

// Dispatch отправляет POST на endpoint и декодирует JSON-ответ.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, endpoint string, payload *domain.Payload) (map[string]any, error) {
	target := d.resolve(endpoint)

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload.Body)
	}

	// Создаём запрос
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}

	if payload != nil && payload.ContentType != "" {
		req.Header.Set("Content-Type", payload.ContentType)
	}
	req.Header.Set("Accept", "application/json")
	for key, val := range d.headers {
		req.Header.Set(key, val)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	// Выполняем запрос
	resp, err := d.client.Do(req)
	if err != nil {
		// Отмена или таймаут шага — возвращаем причину из context
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	d.logger.Debug("remote call finished",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"bytes", len(respBody),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBody),
		}
	}

	return decodeBody(respBody)
}

// noRedirect отключает переходы по редиректам: 3xx от шага — ошибка шага.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// resolve склеивает BaseURL и endpoint.
func (d *HTTPDispatcher) resolve(endpoint string) string {
	u := *d.baseURL
	u.Path = u.Path + "/" + strings.TrimLeft(endpoint, "/")
	return u.String()
}

// decodeBody парсит JSON-объект. Пустое тело — пустой объект.
func decodeBody(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed == nil {
		parsed = map[string]any{}
	}
	return parsed, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
