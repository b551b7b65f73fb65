package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события pipeline.
type EventType string

// Типы событий.
const (
	EventRunStarted   EventType = "run.started"
	EventStepProgress EventType = "step.progress"
	EventStepResult   EventType = "step.result"
	EventStepFailed   EventType = "step.failed"
	EventRunFinished  EventType = "run.finished"
)

// Event — уведомление для подписчиков (UI, метрики, RabbitMQ, архив).
//
// События доставляются синхронно и строго в порядке переходов.
type Event struct {
	Type    EventType `json:"type"`
	RunID   uuid.UUID `json:"run_id"`
	JobName string    `json:"job_name"`

	// StepKey, StepLabel, StepStatus — заполнены для step.* событий.
	StepKey    string     `json:"step_key,omitempty"`
	StepLabel  string     `json:"step_label,omitempty"`
	StepStatus StepStatus `json:"step_status,omitempty"`

	// Result — извлечённый результат (только step.result).
	Result any `json:"result,omitempty"`

	// Duration — время выполнения шага (step.progress в терминальном статусе)
	// или всего run (run.finished).
	Duration time.Duration `json:"duration,omitempty"`

	// Error — текст ошибки (step.failed, run.finished с ABORTED).
	Error string `json:"error,omitempty"`

	// Run — снимок run (только run.finished).
	Run *Run `json:"run,omitempty"`

	Time time.Time `json:"time"`
}
