package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Displacement/internal/domain"
	"github.com/shaiso/Displacement/internal/pipeline"
	"github.com/shaiso/Displacement/internal/telemetry"
)

// Подкаталоги inbox для обработанных файлов.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// defaultSettle — файл младше этого возраста считается недописанным.
const defaultSettle = 5 * time.Second

// PipelineRunner запускает pipeline и ждёт его завершения.
type PipelineRunner interface {
	Run(ctx context.Context, file *domain.Artifact) (*domain.Run, error)
}

// Watcher — периодический обработчик каталога inbox.
type Watcher struct {
	dir        string
	schedule   cron.Schedule
	runner     PipelineRunner
	extensions []string
	settle     time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Config — конфигурация Watcher.
type Config struct {
	// Dir — каталог inbox (обязательно).
	Dir string

	// CronExpr — расписание тиков (default: каждую минуту).
	CronExpr string

	// Runner — pipeline (обязательно).
	Runner PipelineRunner

	// Extensions — принимаемые расширения; пустой список — любые файлы.
	Extensions []string

	// Settle — минимальный возраст файла (default: 5s).
	Settle time.Duration

	Logger *slog.Logger
}

// TickResult — итог одного тика.
type TickResult struct {
	Found     int
	Completed int
	Failed    int
}

// New создаёт Watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, ErrNoDir
	}
	if cfg.Runner == nil {
		return nil, ErrNoRunner
	}

	cronExpr := cfg.CronExpr
	if cronExpr == "" {
		cronExpr = "* * * * *"
	}
	schedule, err := ParseSchedule(cronExpr)
	if err != nil {
		return nil, err
	}

	settle := cfg.Settle
	if settle < 0 {
		settle = 0
	} else if settle == 0 {
		settle = defaultSettle
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		dir:        cfg.Dir,
		schedule:   schedule,
		runner:     cfg.Runner,
		extensions: cfg.Extensions,
		settle:     settle,
		logger:     logger.With("component", "watcher", "dir", cfg.Dir),
		now:        time.Now,
	}, nil
}

// Run выполняет тики по расписанию до отмены ctx.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.ensureDirs(); err != nil {
		return err
	}

	w.logger.Info("watcher started", "next_tick", w.Next())

	for {
		timer := time.NewTimer(time.Until(w.Next()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := w.Tick(ctx); err != nil {
			w.logger.Error("watcher tick failed", "error", err)
		}
	}
}

// Next возвращает время следующего тика по расписанию.
func (w *Watcher) Next() time.Time {
	return w.schedule.Next(w.now())
}

// Tick обрабатывает все подходящие файлы inbox по очереди.
//
// Ошибка run одного файла не останавливает обработку остальных.
// Отмена ctx прерывает текущий run и оставшиеся файлы остаются в inbox.
func (w *Watcher) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	if err := w.ensureDirs(); err != nil {
		return res, err
	}

	files, err := w.pending()
	if err != nil {
		return res, err
	}
	res.Found = len(files)
	if len(files) == 0 {
		return res, nil
	}

	w.logger.Debug("found inbox files", "count", len(files))

	for _, name := range files {
		if ctx.Err() != nil {
			break
		}

		ok, err := w.process(ctx, name)
		if err != nil {
			w.logger.Error("failed to process inbox file", "file", name, "error", err)
			continue
		}
		if ok {
			res.Completed++
		} else {
			res.Failed++
		}
	}

	w.logger.Info("watcher tick completed",
		"found", res.Found,
		"completed", res.Completed,
		"failed", res.Failed,
	)

	return res, nil
}

// process выполняет pipeline для одного файла и переносит его.
// Возвращает true, если run завершён успешно.
func (w *Watcher) process(ctx context.Context, name string) (bool, error) {
	src := filepath.Join(w.dir, name)

	artifact, err := domain.LoadArtifact(src)
	if err != nil {
		return false, err
	}

	logger := telemetry.WithFile(w.logger, name)
	run, runErr := w.runner.Run(telemetry.WithLogger(ctx, logger), artifact)

	// Отмена сервиса — файл остаётся в inbox для следующего запуска
	if runErr != nil && ctx.Err() != nil {
		return false, fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	if errors.Is(runErr, pipeline.ErrRunInProgress) {
		return false, runErr
	}

	if runErr == nil {
		logger.Info("inbox file processed", "run_id", runID(run))
		return true, w.move(name, DoneDir)
	}

	logger.Warn("inbox file failed", "run_id", runID(run), "error", runErr)

	reason := filepath.Join(w.dir, FailedDir, name+".error")
	if err := os.WriteFile(reason, []byte(runErr.Error()+"\n"), 0o644); err != nil {
		logger.Warn("failed to write error file", "path", reason, "error", err)
	}
	return false, w.move(name, FailedDir)
}

// pending возвращает имена подходящих файлов, отсортированные по имени.
func (w *Watcher) pending() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	now := w.now()
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if !pipeline.HasExtension(name, w.extensions...) {
			continue
		}

		// Файл ещё может дописываться
		if w.settle > 0 {
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) < w.settle {
				continue
			}
		}

		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

// move переносит файл в подкаталог; существующий файл перезаписывается.
func (w *Watcher) move(name, sub string) error {
	dst := filepath.Join(w.dir, sub, name)
	if err := os.Rename(filepath.Join(w.dir, name), dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", name, sub, err)
	}
	return nil
}

func (w *Watcher) ensureDirs() error {
	for _, sub := range []string{DoneDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return nil
}

func runID(run *domain.Run) string {
	if run == nil {
		return ""
	}
	return run.ID.String()
}
