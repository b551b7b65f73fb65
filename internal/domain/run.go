package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один прогон pipeline для одного загруженного файла.
//
// Run создаётся когда:
// - Пользователь загружает файл через API или CLI
// - Inbox watcher находит новый файл в каталоге
//
// Новый run полностью заменяет предыдущий: текущим всегда является только один.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// JobName — имя задания, выведенное из имени файла (один раз за run).
	JobName string `json:"job_name"`

	// SourceName — исходное имя загруженного файла.
	SourceName string `json:"source_name"`

	// Status — текущий статус pipeline.
	Status PipelineStatus `json:"status"`

	// Steps — прогресс шагов в порядке каталога.
	Steps []StepProgress `json:"steps"`

	// Results — извлечённые результаты шагов (ключ шага → значение).
	Results map[string]any `json:"results,omitempty"`

	// FailedStep — ключ упавшего шага (если run прерван).
	FailedStep string `json:"failed_step,omitempty"`

	// Error — текст ошибки упавшего шага.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepProgress — статус одного шага для отображения.
type StepProgress struct {
	Key    string     `json:"key"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}
