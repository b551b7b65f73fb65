package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Displacement/internal/domain"
)

// Ограничения выборки.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          UUID PRIMARY KEY,
	job_name    TEXT        NOT NULL,
	source_name TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	steps       JSONB       NOT NULL,
	results     JSONB,
	failed_step TEXT,
	error       TEXT,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS runs_finished_at_idx ON runs (finished_at DESC);
CREATE INDEX IF NOT EXISTS runs_job_name_idx ON runs (job_name);
`

const selectColumns = `
	SELECT id, job_name, source_name, status, steps, results,
	       failed_step, error, started_at, finished_at
	FROM runs
`

// RunRepo — архив завершённых runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// EnsureSchema создаёт таблицу runs, если её нет.
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Save сохраняет завершённый run. Повторное сохранение перезаписывает запись.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	if !run.IsFinished() {
		return fmt.Errorf("%w: %s is %s", ErrNotFinished, run.ID, run.Status)
	}

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	var resultsJSON []byte
	if len(run.Results) > 0 {
		if resultsJSON, err = json.Marshal(run.Results); err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
	}

	query := `
		INSERT INTO runs (id, job_name, source_name, status, steps, results,
		                  failed_step, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, steps = EXCLUDED.steps, results = EXCLUDED.results,
		    failed_step = EXCLUDED.failed_step, error = EXCLUDED.error,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.JobName,
		run.SourceName,
		run.Status,
		stepsJSON,
		resultsJSON,
		nullString(run.FailedStep),
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	return scanRun(r.pool.QueryRow(ctx, selectColumns+" WHERE id = $1", id))
}

// List возвращает архив, новые runs первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	filter = filter.normalize()

	query := selectColumns + `
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR job_name = $2)
		ORDER BY finished_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.JobName),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры выборки архива.
type RunFilter struct {
	Status  domain.PipelineStatus
	JobName string
	Limit   int
	Offset  int
}

// normalize применяет ограничения Limit и Offset.
func (f RunFilter) normalize() RunFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// scanRun сканирует строку (pgx.Row или pgx.Rows) в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var stepsJSON, resultsJSON []byte
	var failedStep, runError *string

	err := row.Scan(
		&run.ID,
		&run.JobName,
		&run.SourceName,
		&run.Status,
		&stepsJSON,
		&resultsJSON,
		&failedStep,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if resultsJSON != nil {
		if err := json.Unmarshal(resultsJSON, &run.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	if failedStep != nil {
		run.FailedStep = *failedStep
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
