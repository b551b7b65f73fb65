package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Имена атрибутов логов pipeline.
const (
	AttrService = "service"
	AttrRunID   = "run_id"
	AttrJobName = "job_name"
	AttrStep    = "step"
	AttrFile    = "file"
)

// LogLevel определяет уровень логирования из LOG_LEVEL.
// Регистр не важен; WARNING — синоним WARN. По умолчанию: INFO.
func LogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер сервиса.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — для сборщиков логов
//   - "text" — для локального запуска
//
// Каждая запись несёт атрибут service.
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, os.Getenv("LOG_FORMAT"), LogLevel()).With(AttrService, service)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер с заданным форматом ("text" или JSON) и уровнем.
// Источник вызова добавляется только на уровне DEBUG.
func NewLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level.Level() == slog.LevelDebug,
	}

	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type ctxKey struct{}

// WithLogger кладёт логгер в контекст run.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгера нет, возвращает fallback, а при nil fallback — глобальный.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithRunID возвращает логгер с добавленным run_id.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(AttrRunID, runID)
}

// WithJobName возвращает логгер с добавленным job_name.
func WithJobName(logger *slog.Logger, jobName string) *slog.Logger {
	return logger.With(AttrJobName, jobName)
}

// WithStep возвращает логгер с добавленным ключом шага.
func WithStep(logger *slog.Logger, stepKey string) *slog.Logger {
	return logger.With(AttrStep, stepKey)
}

// WithFile возвращает логгер с именем исходного файла.
func WithFile(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(AttrFile, name)
}

// WithRun возвращает логгер с run_id и job_name.
func WithRun(logger *slog.Logger, runID, jobName string) *slog.Logger {
	return WithJobName(WithRunID(logger, runID), jobName)
}
