package domain

// PipelineStatus — статус выполнения pipeline целиком.
//
// Жизненный цикл:
//
//	IDLE → RUNNING → COMPLETED
//	               ↘ ABORTED (первый упавший шаг)
type PipelineStatus string

const (
	// PipelineStatusIdle — ни один run ещё не запускался.
	PipelineStatusIdle PipelineStatus = "IDLE"

	// PipelineStatusRunning — run в процессе выполнения.
	PipelineStatusRunning PipelineStatus = "RUNNING"

	// PipelineStatusCompleted — все шаги завершены успешно.
	PipelineStatusCompleted PipelineStatus = "COMPLETED"

	// PipelineStatusAborted — run прерван на первом упавшем шаге.
	PipelineStatusAborted PipelineStatus = "ABORTED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case PipelineStatusCompleted, PipelineStatusAborted:
		return true
	default:
		return false
	}
}

// StepStatus — статус отдельного шага.
//
// Жизненный цикл:
//
//	PENDING → IN_FLIGHT → COMPLETED
//	                    ↘ FAILED
//
// В PENDING и IN_FLIGHT шаг никогда не возвращается.
type StepStatus string

const (
	// StepStatusPending — шаг ещё не запускался.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusInFlight — запрос шага отправлен, ждём ответ.
	StepStatusInFlight StepStatus = "IN_FLIGHT"

	// StepStatusCompleted — шаг успешно завершён.
	StepStatusCompleted StepStatus = "COMPLETED"

	// StepStatusFailed — шаг завершился ошибкой.
	StepStatusFailed StepStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition проверяет допустимость перехода s → next.
func (s StepStatus) CanTransition(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusInFlight
	case StepStatusInFlight:
		return next == StepStatusCompleted || next == StepStatusFailed
	default:
		return false
	}
}

// PayloadKind — тип тела запроса шага.
type PayloadKind string

const (
	// PayloadBinaryUpload — multipart/form-data с исходным файлом и jobName.
	PayloadBinaryUpload PayloadKind = "binary_upload"

	// PayloadStructured — JSON-объект с jobName (и результатами предыдущих шагов).
	PayloadStructured PayloadKind = "structured"
)

// IsValid проверяет, что тип известен.
func (k PayloadKind) IsValid() bool {
	return k == PayloadBinaryUpload || k == PayloadStructured
}
