package pipeline

import (
	"errors"
	"fmt"
)

// Ошибки pipeline.
var (
	// ErrRunInProgress — попытка запустить run, пока текущий не завершён.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrStepFailed — шаг завершился ошибкой, run прерван.
	ErrStepFailed = errors.New("step failed")

	// ErrNoDispatcher — Runner создан без транспорта.
	ErrNoDispatcher = errors.New("dispatcher not configured")

	// ErrMissingArtifact — шагу с binary payload не передан исходный файл.
	ErrMissingArtifact = errors.New("source artifact missing")

	// ErrMissingResult — шаг требует результат шага, которого нет в контексте.
	ErrMissingResult = errors.New("required step result missing")

	// ErrUnknownStep — ключ шага отсутствует в каталоге.
	ErrUnknownStep = errors.New("unknown step")

	// ErrInvalidTransition — недопустимый переход статуса шага.
	ErrInvalidTransition = errors.New("invalid step transition")

	// ErrStepInFlight — другой шаг уже выполняется.
	ErrStepInFlight = errors.New("another step is in flight")

	// ErrRunAborted — шаг нельзя запустить после упавшего шага.
	ErrRunAborted = errors.New("run already aborted")
)

// StepError — ошибка конкретного шага.
//
// Поддерживает errors.Is(err, ErrStepFailed) и errors.Is/As для исходной причины.
type StepError struct {
	// Key — ключ упавшего шага.
	Key string

	// Label — название шага для пользователя.
	Label string

	// Err — причина (ошибка транспорта, статус ответа, извлекателя и т.д.).
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s) failed: %v", e.Key, e.Label, e.Err)
}

// Unwrap возвращает ErrStepFailed и причину.
func (e *StepError) Unwrap() []error {
	return []error{ErrStepFailed, e.Err}
}
