package repo

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Displacement/internal/domain"
)

const (
	archiveBuffer      = 16
	archiveSaveTimeout = 10 * time.Second
)

// RunSaver сохраняет завершённый run.
type RunSaver interface {
	Save(ctx context.Context, run *domain.Run) error
}

// Archiver сохраняет снимки из событий run.finished.
//
// Observe не блокирует Runner: снимки передаются в горутину Run.
type Archiver struct {
	saver  RunSaver
	queue  chan domain.Run
	logger *slog.Logger
}

// NewArchiver создаёт Archiver.
func NewArchiver(saver RunSaver, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		saver:  saver,
		queue:  make(chan domain.Run, archiveBuffer),
		logger: logger,
	}
}

// Observe принимает событие pipeline. Учитываются только run.finished.
func (a *Archiver) Observe(ev domain.Event) {
	if ev.Type != domain.EventRunFinished || ev.Run == nil {
		return
	}

	select {
	case a.queue <- *ev.Run:
	default:
		a.logger.Warn("archive queue full, run not archived", "run_id", ev.RunID)
	}
}

// Run сохраняет runs до отмены ctx, затем сохраняет остаток очереди.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		select {
		case run := <-a.queue:
			a.save(ctx, &run)
		case <-ctx.Done():
			for {
				select {
				case run := <-a.queue:
					a.save(context.Background(), &run)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Archiver) save(ctx context.Context, run *domain.Run) {
	saveCtx, cancel := context.WithTimeout(ctx, archiveSaveTimeout)
	defer cancel()

	if err := a.saver.Save(saveCtx, run); err != nil {
		a.logger.Error("failed to archive run", "run_id", run.ID, "error", err)
		return
	}
	a.logger.Debug("run archived", "run_id", run.ID, "status", run.Status)
}
