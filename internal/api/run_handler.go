package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Displacement/internal/domain"
	"github.com/shaiso/Displacement/internal/pipeline"
	"github.com/shaiso/Displacement/internal/repo"
	"github.com/shaiso/Displacement/internal/telemetry"
)

// multipartMemory — сколько байт формы держать в памяти до сброса на диск.
const multipartMemory = 32 << 20

// SubmitRun загружает файл и запускает pipeline.
// POST /api/v1/runs (multipart/form-data, поле "file")
//
// Ответ 202 содержит снимок нового run в статусе RUNNING.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			TooLarge(w, "file is too large")
			return
		}
		BadRequest(w, "expected multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(pipeline.FieldFile)
	if errors.Is(err, http.ErrMissingFile) {
		BadRequest(w, "file is required")
		return
	}
	if err != nil {
		BadRequest(w, "invalid file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		InternalError(w, telemetry.FromContext(r.Context(), h.logger), err)
		return
	}
	if len(data) == 0 {
		BadRequest(w, "file is empty")
		return
	}

	artifact := domain.NewArtifact(header.Filename, data)

	// Run переживает запрос, но логирует с его request_id
	runCtx := telemetry.WithLogger(h.runCtx, telemetry.FromContext(r.Context(), h.logger))
	if _, err := h.runner.Start(runCtx, artifact); HandleError(w, r, h.logger, err) {
		return
	}

	snapshot := h.runner.Snapshot()
	telemetry.FromContext(r.Context(), h.logger).Info("run submitted",
		"run_id", snapshot.ID,
		"job_name", snapshot.JobName,
		"size", artifact.Size(),
	)

	Accepted(w, RunFromDomain(snapshot))
}

// CurrentRun возвращает снимок текущего (или последнего) run.
// GET /api/v1/runs/current
func (h *Handler) CurrentRun(w http.ResponseWriter, r *http.Request) {
	Success(w, RunFromDomain(h.runner.Snapshot()))
}

// GetRun возвращает run по ID: текущий или из архива.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if current := h.runner.Snapshot(); current.ID == id {
		Success(w, RunFromDomain(current))
		return
	}

	if h.archive == nil {
		NotFound(w, "run not found")
		return
	}

	run, err := h.archive.GetByID(r.Context(), id)
	if HandleError(w, r, h.logger, err) {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRuns возвращает архив завершённых runs.
// GET /api/v1/runs?status=...&job_name=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		Unavailable(w, "run archive is not configured")
		return
	}

	q := r.URL.Query()
	filter := repo.RunFilter{
		JobName: q.Get("job_name"),
		Limit:   parseIntParam(q.Get("limit"), repo.DefaultListLimit),
		Offset:  parseIntParam(q.Get("offset"), 0),
	}

	if status := q.Get("status"); status != "" {
		s := domain.PipelineStatus(status)
		if !s.IsTerminal() {
			BadRequest(w, "status must be COMPLETED or ABORTED")
			return
		}
		filter.Status = s
	}

	runs, err := h.archive.List(r.Context(), filter)
	if HandleError(w, r, h.logger, err) {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// parseIntParam разбирает целое из query; при ошибке — defaultVal.
func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
