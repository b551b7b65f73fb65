package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
)

// Run DTOs

// RunResponse — снимок run.
type RunResponse struct {
	ID         *uuid.UUID            `json:"id,omitempty"`
	JobName    string                `json:"job_name,omitempty"`
	SourceName string                `json:"source_name,omitempty"`
	Status     domain.PipelineStatus `json:"status"`
	Steps      []domain.StepProgress `json:"steps"`
	Results    map[string]any        `json:"results"`
	FailedStep string                `json:"failed_step,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	DurationMS int64                 `json:"duration_ms,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	resp := RunResponse{
		JobName:    r.JobName,
		SourceName: r.SourceName,
		Status:     r.Status,
		Steps:      r.Steps,
		Results:    r.Results,
		FailedStep: r.FailedStep,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
	}

	// IDLE run не имеет ID
	if r.ID != uuid.Nil {
		id := r.ID
		resp.ID = &id
	}
	if resp.Steps == nil {
		resp.Steps = []domain.StepProgress{}
	}
	if resp.Results == nil {
		resp.Results = map[string]any{}
	}

	return resp
}

// Step DTOs

// StepResponse — описание шага каталога.
type StepResponse struct {
	Key       string             `json:"key"`
	Label     string             `json:"label"`
	Endpoint  string             `json:"endpoint"`
	Kind      domain.PayloadKind `json:"kind"`
	Requires  []string           `json:"requires,omitempty"`
	HasResult bool               `json:"has_result"`
}

// StepFromCatalog конвертирует catalog.Step в StepResponse.
func StepFromCatalog(s catalog.Step) StepResponse {
	return StepResponse{
		Key:       s.Key,
		Label:     s.DisplayName(),
		Endpoint:  s.Endpoint,
		Kind:      s.Kind,
		Requires:  s.Requires,
		HasResult: s.HasExtractor(),
	}
}
