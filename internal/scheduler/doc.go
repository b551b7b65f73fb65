// Package scheduler реализует inbox watcher: периодический запуск
// pipeline для файлов, положенных в каталог.
//
// Watcher по cron-расписанию просматривает INBOX_DIR, запускает pipeline
// для каждого подходящего файла по очереди и переносит файл:
//   - done/   — run завершён успешно
//   - failed/ — run прерван (рядом пишется <file>.error с причиной)
//
// Структура:
//   - watcher.go — основная логика Watcher (Tick, Run)
//   - cron.go    — парсинг cron-выражений и вычисление следующего тика
//
// Использование:
//
//	w, err := scheduler.New(scheduler.Config{
//	    Dir:      "/data/inbox",
//	    CronExpr: "*/5 * * * *",
//	    Runner:   runner,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	go w.Run(ctx)
package scheduler
