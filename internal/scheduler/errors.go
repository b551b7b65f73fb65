package scheduler

import "errors"

// Ошибки watcher.
var (
	// ErrInvalidCron — некорректное cron-выражение.
	ErrInvalidCron = errors.New("invalid cron expression")

	// ErrNoRunner — не задан pipeline.
	ErrNoRunner = errors.New("runner is required")

	// ErrNoDir — не задан каталог inbox.
	ErrNoDir = errors.New("inbox dir is required")
)
