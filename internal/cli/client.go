package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// --- Response types (дублируются из api/dto.go, клиент API не импортирует internal/api) ---

// StepProgress — статус шага в снимке run.
type StepProgress struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// RunResponse — снимок run из API.
type RunResponse struct {
	ID         string         `json:"id,omitempty"`
	JobName    string         `json:"job_name,omitempty"`
	SourceName string         `json:"source_name,omitempty"`
	Status     string         `json:"status"`
	Steps      []StepProgress `json:"steps"`
	Results    map[string]any `json:"results"`
	FailedStep string         `json:"failed_step,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
}

// IsFinished возвращает true для COMPLETED и ABORTED.
func (r *RunResponse) IsFinished() bool {
	return r.Status == "COMPLETED" || r.Status == "ABORTED"
}

// StepResponse — шаг каталога из API.
type StepResponse struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Endpoint  string   `json:"endpoint"`
	Kind      string   `json:"kind"`
	Requires  []string `json:"requires,omitempty"`
	HasResult bool     `json:"has_result"`
}

// ListRunsOpts — параметры выборки архива.
type ListRunsOpts struct {
	Status  string
	JobName string
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ответ API с ошибкой.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConflict сообщает, что API отклонило запуск: run уже выполняется.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsNotFound сообщает, что API не нашло запрошенный объект.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// --- Client ---

// Client — HTTP-клиент для Displacement API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute, // загрузка облака точек может быть долгой
		},
	}
}

// --- Runs ---

// Submit загружает файл и запускает pipeline.
func (c *Client) Submit(path string) (*RunResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/runs", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var run RunResponse
	if err := c.decodeData(resp, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CurrentRun возвращает снимок текущего run.
func (c *Client) CurrentRun() (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/current", &run)
	return &run, err
}

// GetRun возвращает run по ID (текущий или из архива).
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// ListRuns возвращает архив runs.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.JobName != "" {
		params.Set("job_name", opts.JobName)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// --- Steps ---

// ListSteps возвращает каталог шагов.
func (c *Client) ListSteps() ([]StepResponse, error) {
	var steps []StepResponse
	err := c.list("/api/v1/steps", nil, &steps)
	return steps, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeData(resp, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}

	return apiErr
}
