package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
	"github.com/shaiso/Displacement/internal/telemetry"
)

// Default configuration values.
const (
	defaultStepTimeout = 10 * time.Minute
)

// Dispatcher отправляет тело запроса на endpoint удалённого сервиса
// и возвращает декодированный JSON-ответ.
//
// Любая ошибка (сеть, статус ответа, формат) — терминальная для run.
type Dispatcher interface {
	Dispatch(ctx context.Context, endpoint string, payload *domain.Payload) (map[string]any, error)
}

// Subscriber получает события pipeline.
// Вызывается синхронно из горутины run — не должен блокироваться.
type Subscriber func(ev domain.Event)

// Runner — конечный автомат pipeline.
//
// Runner:
//   - Выводит jobName из имени файла (один раз за run)
//   - Сбрасывает Context и ProgressTracker при каждом новом run
//   - Выполняет шаги каталога строго по порядку
//   - Применяет извлекатели результатов
//   - Прерывает run на первой ошибке (fail-fast), без retry
//   - Уведомляет подписчиков о каждом переходе
type Runner struct {
	catalog     *catalog.Catalog
	dispatcher  Dispatcher
	builder     PayloadBuilder
	stepTimeout time.Duration
	extensions  []string
	logger      *slog.Logger

	// current — состояние текущего (или последнего) run.
	current *execution
	mu      sync.RWMutex

	subs   []subscription
	nextID int
	subsMu sync.RWMutex
}

// execution — состояние одного run.
type execution struct {
	run      *domain.Run
	pctx     *Context
	progress *ProgressTracker

	// finished закрывается после доставки run.finished подписчикам.
	finished chan struct{}
}

type subscription struct {
	id int
	fn Subscriber
}

// Config — конфигурация Runner.
type Config struct {
	// Catalog — шаги pipeline (default: catalog.Baseline()).
	Catalog *catalog.Catalog

	// Dispatcher — транспорт к удалённому сервису (обязательно).
	Dispatcher Dispatcher

	// Builder — построитель тел запросов (default: DefaultPayloadBuilder).
	Builder PayloadBuilder

	// StepTimeout — таймаут одного шага (default: 10m).
	StepTimeout time.Duration

	// Extensions — допустимые расширения файла для вывода jobName.
	// Пустой список — отрезается любое расширение.
	Extensions []string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.Baseline()
	}

	builder := cfg.Builder
	if builder == nil {
		builder = DefaultPayloadBuilder{}
	}

	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		catalog:     cat,
		dispatcher:  cfg.Dispatcher,
		builder:     builder,
		stepTimeout: stepTimeout,
		extensions:  cfg.Extensions,
		logger:      logger,
		current: &execution{
			run:      &domain.Run{Status: domain.PipelineStatusIdle},
			pctx:     NewContext("", nil),
			progress: NewProgressTracker(cat),
			finished: closedChan(),
		},
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Catalog возвращает каталог шагов.
func (r *Runner) Catalog() *catalog.Catalog {
	return r.catalog
}

// Subscribe регистрирует подписчика. Возвращает функцию отписки.
func (r *Runner) Subscribe(fn Subscriber) func() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription{id: id, fn: fn})

	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Run выполняет pipeline для файла и ждёт завершения.
//
// file == nil — no-op: состояние не меняется, возвращается (nil, nil).
// При ошибке шага возвращается снимок ABORTED run и *StepError.
func (r *Runner) Run(ctx context.Context, file *domain.Artifact) (*domain.Run, error) {
	if file == nil {
		return nil, nil
	}

	exec, done, err := r.start(ctx, file)
	if err != nil {
		return nil, err
	}

	runErr := <-done
	snapshot := r.snapshotOf(exec)
	return &snapshot, runErr
}

// Start запускает pipeline в отдельной горутине.
//
// Сброс состояния (Context, ProgressTracker, jobName) выполняется синхронно,
// поэтому сразу после возврата Snapshot() показывает новый run в RUNNING.
// Канал получает результат run и закрывается.
// Если предыдущий run ещё выполняется — ErrRunInProgress.
func (r *Runner) Start(ctx context.Context, file *domain.Artifact) (<-chan error, error) {
	if file == nil {
		done := make(chan error)
		close(done)
		return done, nil
	}

	_, done, err := r.start(ctx, file)
	return done, err
}

func (r *Runner) start(ctx context.Context, file *domain.Artifact) (*execution, <-chan error, error) {
	if r.dispatcher == nil {
		return nil, nil, ErrNoDispatcher
	}

	r.mu.Lock()
	if r.current.run.Status == domain.PipelineStatusRunning {
		r.mu.Unlock()
		return nil, nil, ErrRunInProgress
	}

	now := time.Now()
	jobName := DeriveJobName(file.Name, r.extensions...)
	exec := &execution{
		run: &domain.Run{
			ID:         uuid.New(),
			JobName:    jobName,
			SourceName: file.Name,
			Status:     domain.PipelineStatusRunning,
			StartedAt:  &now,
		},
		pctx:     NewContext(jobName, file),
		progress: NewProgressTracker(r.catalog),
		finished: make(chan struct{}),
	}
	r.current = exec
	r.mu.Unlock()

	r.emit(domain.Event{
		Type:    domain.EventRunStarted,
		RunID:   exec.run.ID,
		JobName: jobName,
		Time:    now,
	})

	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := r.execute(ctx, exec)
		close(exec.finished)
		done <- err
	}()

	return exec, done, nil
}

// Snapshot возвращает копию текущего run с прогрессом и результатами.
func (r *Runner) Snapshot() domain.Run {
	r.mu.RLock()
	exec := r.current
	r.mu.RUnlock()

	return r.snapshotOf(exec)
}

func (r *Runner) snapshotOf(exec *execution) domain.Run {
	r.mu.RLock()
	run := *exec.run
	r.mu.RUnlock()

	run.Steps = exec.progress.Snapshot()
	run.Results = exec.pctx.ResultMap()
	return run
}

// Wait ждёт, пока текущий run завершится и run.finished будет доставлен
// подписчикам. Без активного run возвращает сразу.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.RLock()
	finished := r.current.finished
	r.mu.RUnlock()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context возвращает Context текущего run (только для чтения).
func (r *Runner) Context() *Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.pctx
}

// Progress возвращает ProgressTracker текущего run (только для чтения).
func (r *Runner) Progress() *ProgressTracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.progress
}

// Status возвращает статус текущего run.
func (r *Runner) Status() domain.PipelineStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.run.Status
}

// execute проходит каталог по порядку.
func (r *Runner) execute(ctx context.Context, exec *execution) error {
	logger := telemetry.WithRun(telemetry.FromContext(ctx, r.logger), exec.run.ID.String(), exec.pctx.JobName())
	logger.Info("run started", "steps", r.catalog.Len(), "source", exec.run.SourceName)

	for _, step := range r.catalog.Steps() {
		if err := r.runStep(ctx, exec, step, logger); err != nil {
			stepErr := &StepError{Key: step.Key, Label: step.DisplayName(), Err: err}
			r.finish(exec, stepErr, logger)
			return stepErr
		}
	}

	r.finish(exec, nil, logger)
	return nil
}

// runStep выполняет один шаг: IN_FLIGHT → запрос → извлечение → COMPLETED|FAILED.
func (r *Runner) runStep(ctx context.Context, exec *execution, step catalog.Step, logger *slog.Logger) error {
	logger = telemetry.WithStep(logger, step.Key)

	if err := exec.progress.Transition(step.Key, domain.StepStatusInFlight); err != nil {
		return err
	}
	r.emitStep(exec, step, domain.StepStatusInFlight, 0)

	started := time.Now()
	logger.Debug("step started", "endpoint", step.Endpoint)

	result, err := r.callStep(ctx, exec, step)
	duration := time.Since(started)

	if err != nil {
		// Переход IN_FLIGHT → FAILED всегда допустим
		_ = exec.progress.Transition(step.Key, domain.StepStatusFailed)
		r.emitStep(exec, step, domain.StepStatusFailed, duration)
		r.emit(domain.Event{
			Type:       domain.EventStepFailed,
			RunID:      exec.run.ID,
			JobName:    exec.pctx.JobName(),
			StepKey:    step.Key,
			StepLabel:  step.DisplayName(),
			StepStatus: domain.StepStatusFailed,
			Duration:   duration,
			Error:      err.Error(),
			Time:       time.Now(),
		})
		logger.Warn("step failed", "duration", duration, "error", err)
		return err
	}

	if step.HasExtractor() {
		exec.pctx.setResult(step.Key, result)
		r.emit(domain.Event{
			Type:      domain.EventStepResult,
			RunID:     exec.run.ID,
			JobName:   exec.pctx.JobName(),
			StepKey:   step.Key,
			StepLabel: step.DisplayName(),
			Result:    result,
			Time:      time.Now(),
		})
	}

	if err := exec.progress.Transition(step.Key, domain.StepStatusCompleted); err != nil {
		return err
	}
	r.emitStep(exec, step, domain.StepStatusCompleted, duration)
	logger.Debug("step completed", "duration", duration)

	return nil
}

// callStep строит payload, отправляет запрос и применяет извлекатель.
func (r *Runner) callStep(ctx context.Context, exec *execution, step catalog.Step) (any, error) {
	payload, err := r.builder.Build(step, exec.pctx)
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	body, err := r.dispatcher.Dispatch(stepCtx, step.Endpoint, payload)
	if err != nil {
		return nil, err
	}

	if !step.HasExtractor() {
		return nil, nil
	}

	result, err := step.Extract(body)
	if err != nil {
		return nil, fmt.Errorf("extract result: %w", err)
	}
	return result, nil
}

// finish переводит run в COMPLETED или ABORTED и публикует run.finished.
func (r *Runner) finish(exec *execution, stepErr *StepError, logger *slog.Logger) {
	now := time.Now()

	r.mu.Lock()
	exec.run.FinishedAt = &now
	if stepErr == nil {
		exec.run.Status = domain.PipelineStatusCompleted
	} else {
		exec.run.Status = domain.PipelineStatusAborted
		exec.run.FailedStep = stepErr.Key
		exec.run.Error = stepErr.Err.Error()
	}
	r.mu.Unlock()

	run := r.snapshotOf(exec)

	if stepErr == nil {
		logger.Info("run completed", "duration", run.Duration(), "results", len(run.Results))
	} else {
		logger.Warn("run aborted",
			"failed_step", stepErr.Key,
			"duration", run.Duration(),
			"error", stepErr.Err,
		)
	}

	r.emit(domain.Event{
		Type:     domain.EventRunFinished,
		RunID:    run.ID,
		JobName:  run.JobName,
		StepKey:  run.FailedStep,
		Duration: run.Duration(),
		Error:    run.Error,
		Run:      &run,
		Time:     now,
	})
}

// emitStep публикует step.progress.
func (r *Runner) emitStep(exec *execution, step catalog.Step, status domain.StepStatus, duration time.Duration) {
	r.emit(domain.Event{
		Type:       domain.EventStepProgress,
		RunID:      exec.run.ID,
		JobName:    exec.pctx.JobName(),
		StepKey:    step.Key,
		StepLabel:  step.DisplayName(),
		StepStatus: status,
		Duration:   duration,
		Time:       time.Now(),
	})
}

// emit доставляет событие всем подписчикам по порядку регистрации.
// Паника подписчика не прерывает run.
func (r *Runner) emit(ev domain.Event) {
	r.subsMu.RLock()
	subs := make([]subscription, len(r.subs))
	copy(subs, r.subs)
	r.subsMu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("subscriber panic recovered",
						"event", ev.Type,
						"error", rec,
					)
				}
			}()
			s.fn(ev)
		}()
	}
}
