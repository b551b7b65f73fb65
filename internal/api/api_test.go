package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
	"github.com/shaiso/Displacement/internal/pipeline"
	"github.com/shaiso/Displacement/internal/repo"
)

// --- Test helpers ---

// stubDispatcher отвечает полным набором полей; release блокирует ответ.
type stubDispatcher struct {
	release chan struct{}
}

func (d *stubDispatcher) Dispatch(ctx context.Context, endpoint string, payload *domain.Payload) (map[string]any, error) {
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]any{
		"previews":     []any{"p1"},
		"prediction":   "pred",
		"mask":         "mask",
		"overlay":      "overlay",
		"result_image": "final.png",
	}, nil
}

type stubArchive struct {
	runs   []domain.Run
	filter repo.RunFilter
}

func (a *stubArchive) List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	a.filter = filter
	return a.runs, nil
}

func (a *stubArchive) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	for _, r := range a.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, repo.ErrNotFound
}

func newTestServer(t *testing.T, d pipeline.Dispatcher, archive RunArchive) (*httptest.Server, *pipeline.Runner) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := pipeline.New(pipeline.Config{
		Catalog:    catalog.Baseline(),
		Dispatcher: d,
		Logger:     logger,
	})

	cfg := Config{
		Runner:         runner,
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         logger,
	}
	if archive != nil {
		cfg.Archive = archive
	}
	h := NewHandler(cfg)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, runner
}

func uploadRequest(t *testing.T, url, filename string, data []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(data)
	} else {
		mw.WriteField("note", "no file")
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url+"/api/v1/runs", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var body struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Data
}

func waitFinished(t *testing.T, runner *pipeline.Runner) domain.Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := runner.Snapshot(); s.Status.IsTerminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish")
	return domain.Run{}
}

// --- SubmitRun Tests ---

func TestSubmitRun_Accepted(t *testing.T) {
	srv, runner := newTestServer(t, &stubDispatcher{}, nil)

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL, "Main_St.las", []byte("LASF")))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	run := decodeData[RunResponse](t, resp)
	if run.JobName != "Main_St" {
		t.Errorf("expected job name Main_St, got %s", run.JobName)
	}
	if run.ID == nil {
		t.Error("expected run id")
	}
	if len(run.Steps) != 7 {
		t.Errorf("expected 7 steps, got %d", len(run.Steps))
	}

	final := waitFinished(t, runner)
	if final.Status != domain.PipelineStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", final.Status)
	}
	if final.Results["result"] != "final.png" {
		t.Errorf("expected final result, got %v", final.Results["result"])
	}
}

func TestSubmitRun_MissingFile(t *testing.T) {
	srv, runner := newTestServer(t, &stubDispatcher{}, nil)

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL, "", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if runner.Status() != domain.PipelineStatusIdle {
		t.Errorf("expected runner to stay IDLE, got %s", runner.Status())
	}
}

func TestSubmitRun_NotMultipart(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{}, nil)

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSubmitRun_ConflictWhileRunning(t *testing.T) {
	release := make(chan struct{})
	srv, runner := newTestServer(t, &stubDispatcher{release: release}, nil)

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL, "Main_St.las", []byte("LASF")))
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(uploadRequest(t, srv.URL, "Oak_Ave.las", []byte("LASF")))
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}

	close(release)
	waitFinished(t, runner)
}

// --- CurrentRun Tests ---

func TestCurrentRun_Idle(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/runs/current")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	run := decodeData[RunResponse](t, resp)
	if run.Status != domain.PipelineStatusIdle {
		t.Errorf("expected IDLE, got %s", run.Status)
	}
	if run.ID != nil {
		t.Errorf("expected no id for idle run, got %v", run.ID)
	}
	for _, s := range run.Steps {
		if s.Status != domain.StepStatusPending {
			t.Errorf("step %s: expected PENDING, got %s", s.Key, s.Status)
		}
	}
}

// --- GetRun / ListRuns Tests ---

func TestGetRun_CurrentAndArchived(t *testing.T) {
	archived := domain.Run{ID: uuid.New(), JobName: "Old", Status: domain.PipelineStatusAborted, FailedStep: "predict"}
	srv, runner := newTestServer(t, &stubDispatcher{}, &stubArchive{runs: []domain.Run{archived}})

	resp, _ := http.DefaultClient.Do(uploadRequest(t, srv.URL, "Main_St.las", []byte("LASF")))
	resp.Body.Close()
	current := waitFinished(t, runner)

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + current.ID.String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got := decodeData[RunResponse](t, resp); got.JobName != "Main_St" {
		t.Errorf("expected current run, got %s", got.JobName)
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + archived.ID.String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got := decodeData[RunResponse](t, resp); got.FailedStep != "predict" {
		t.Errorf("expected archived run, got %+v", got)
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + uuid.New().String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs/not-a-uuid")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListRuns_Archive(t *testing.T) {
	archive := &stubArchive{runs: []domain.Run{
		{ID: uuid.New(), JobName: "A", Status: domain.PipelineStatusCompleted},
		{ID: uuid.New(), JobName: "B", Status: domain.PipelineStatusAborted},
	}}
	srv, _ := newTestServer(t, &stubDispatcher{}, archive)

	resp, err := http.Get(srv.URL + "/api/v1/runs?status=ABORTED&limit=5&job_name=B")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	runs := decodeData[[]RunResponse](t, resp)

	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	if archive.filter.Status != domain.PipelineStatusAborted || archive.filter.Limit != 5 || archive.filter.JobName != "B" {
		t.Errorf("unexpected filter: %+v", archive.filter)
	}
}

func TestListRuns_InvalidStatus(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{}, &stubArchive{})

	resp, err := http.Get(srv.URL + "/api/v1/runs?status=RUNNING")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListRuns_NoArchive(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/runs")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

// --- ListSteps Tests ---

func TestListSteps(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/steps")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	steps := decodeData[[]StepResponse](t, resp)

	if len(steps) != 7 {
		t.Fatalf("expected 7 steps, got %d", len(steps))
	}
	if steps[0].Key != catalog.KeyUpload || steps[0].Kind != domain.PayloadBinaryUpload {
		t.Errorf("unexpected first step: %+v", steps[0])
	}
	if steps[1].HasResult {
		t.Error("split should not have a result")
	}
	if steps[6].Endpoint != "/result" {
		t.Errorf("expected /result, got %s", steps[6].Endpoint)
	}
}

// --- Middleware Tests ---

func TestCORS_AllowedOrigin(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{}, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("unexpected allow-origin: %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected credentials allowed, got %q", got)
	}
}

func TestCORS_UnknownOrigin(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{}, nil)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/steps", nil)
	req.Header.Set("Origin", "http://evil.example")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow-origin, got %q", got)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestLogging_CapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", entry["status"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("expected WARN for 4xx, got %v", entry["level"])
	}
}

func TestLogging_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var inHandler string
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = w.Header().Get(HeaderRequestID)
		w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != "req-42" {
		t.Errorf("expected request id echoed, got %q", got)
	}
	if inHandler != "req-42" {
		t.Errorf("expected request id set before handler, got %q", inHandler)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("expected request_id=req-42, got %v", entry["request_id"])
	}
	if entry["bytes"] != float64(5) {
		t.Errorf("expected bytes=5, got %v", entry["bytes"])
	}
}

func TestHandleError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"run in progress", fmt.Errorf("start: %w", pipeline.ErrRunInProgress), http.StatusConflict},
		{"no dispatcher", pipeline.ErrNoDispatcher, http.StatusServiceUnavailable},
		{"archive miss", fmt.Errorf("get run: %w", repo.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			if !HandleError(rec, req, logger, tt.err) {
				t.Fatal("expected error to be handled")
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}

	if HandleError(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), logger, nil) {
		t.Error("nil error must not be handled")
	}
}

func TestParseIntParam(t *testing.T) {
	if got := parseIntParam("", 20); got != 20 {
		t.Errorf("expected default 20, got %d", got)
	}
	if got := parseIntParam("abc", 20); got != 20 {
		t.Errorf("expected default 20 for invalid, got %d", got)
	}
	if got := parseIntParam("7", 20); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}
