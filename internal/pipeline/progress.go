package pipeline

import (
	"fmt"
	"sync"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
)

// ProgressTracker — статус каждого шага каталога.
//
// Набор ключей всегда совпадает с каталогом. Гарантирует:
//   - переходы только PENDING → IN_FLIGHT → COMPLETED|FAILED
//   - не больше одного шага в IN_FLIGHT
//   - после FAILED ни один шаг не выходит из PENDING
type ProgressTracker struct {
	steps    []catalog.Step
	status   map[string]domain.StepStatus
	inFlight string
	failed   string

	mu sync.RWMutex
}

// NewProgressTracker создаёт трекер со всеми шагами в PENDING.
func NewProgressTracker(cat *catalog.Catalog) *ProgressTracker {
	steps := cat.Steps()
	status := make(map[string]domain.StepStatus, len(steps))
	for _, s := range steps {
		status[s.Key] = domain.StepStatusPending
	}

	return &ProgressTracker{
		steps:  steps,
		status: status,
	}
}

// Transition переводит шаг в статус next.
func (p *ProgressTracker) Transition(key string, next domain.StepStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.status[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, key)
	}

	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s %s → %s", ErrInvalidTransition, key, current, next)
	}

	if next == domain.StepStatusInFlight {
		if p.failed != "" {
			return fmt.Errorf("%w: step %s failed", ErrRunAborted, p.failed)
		}
		if p.inFlight != "" {
			return fmt.Errorf("%w: %s", ErrStepInFlight, p.inFlight)
		}
		p.inFlight = key
	} else {
		p.inFlight = ""
	}

	if next == domain.StepStatusFailed {
		p.failed = key
	}

	p.status[key] = next
	return nil
}

// Status возвращает статус шага.
func (p *ProgressTracker) Status(key string) (domain.StepStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.status[key]
	return s, ok
}

// InFlight возвращает ключ выполняющегося шага или "".
func (p *ProgressTracker) InFlight() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inFlight
}

// Failed возвращает ключ упавшего шага или "".
func (p *ProgressTracker) Failed() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failed
}

// Count возвращает количество шагов в статусе s.
func (p *ProgressTracker) Count(s domain.StepStatus) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, st := range p.status {
		if st == s {
			n++
		}
	}
	return n
}

// Snapshot возвращает статусы в порядке каталога.
func (p *ProgressTracker) Snapshot() []domain.StepProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.StepProgress, len(p.steps))
	for i, s := range p.steps {
		out[i] = domain.StepProgress{
			Key:    s.Key,
			Label:  s.DisplayName(),
			Status: p.status[s.Key],
		}
	}
	return out
}

// Map возвращает копию статусов (ключ → статус).
func (p *ProgressTracker) Map() map[string]domain.StepStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]domain.StepStatus, len(p.status))
	for k, v := range p.status {
		out[k] = v
	}
	return out
}
