// Package app собирает runtime сервисов: Runner с HTTP транспортом
// и его подписчиков (метрики, архив runs, шина событий).
//
// Архив и шина событий подключаются только если заданы DB_URL и RABBITMQ_URL.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/config"
	"github.com/shaiso/Displacement/internal/mq"
	"github.com/shaiso/Displacement/internal/pipeline"
	"github.com/shaiso/Displacement/internal/repo"
	"github.com/shaiso/Displacement/internal/telemetry"
	"github.com/shaiso/Displacement/internal/transport"
)

// App — собранный runtime.
type App struct {
	Runner  *pipeline.Runner
	Metrics *telemetry.Metrics

	// Archive — архив runs (nil, если DB_URL не задан).
	Archive *repo.RunRepo

	pool        *pgxpool.Pool
	conn        *mq.Connection
	workers     []func(ctx context.Context) error
	stopWorkers context.CancelFunc
	logger      *slog.Logger
}

// Options — дополнительные параметры сборки.
type Options struct {
	// Registerer — реестр метрик (default: prometheus.DefaultRegisterer).
	Registerer prometheus.Registerer
}

// New собирает App по конфигурации.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dispatcher, err := transport.NewHTTPDispatcher(transport.Config{
		BaseURL: cfg.RemoteBaseURL,
		Token:   cfg.RemoteToken,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	var catOpts []catalog.Option
	if cfg.LabelReassembly {
		catOpts = append(catOpts, catalog.WithLabelReassembly())
	}

	a := &App{
		Runner: pipeline.New(pipeline.Config{
			Catalog:     catalog.Baseline(catOpts...),
			Dispatcher:  dispatcher,
			StepTimeout: cfg.StepTimeout,
			Extensions:  cfg.JobExtensions,
			Logger:      logger,
		}),
		Metrics: telemetry.NewMetrics(opts.Registerer),
		logger:  logger,
	}
	a.Runner.Subscribe(a.Metrics.Observe)

	logger.Info("pipeline configured",
		"remote", dispatcher.BaseURL(),
		"steps", a.Runner.Catalog().Keys(),
		"step_timeout", cfg.StepTimeout,
	)

	if cfg.ArchiveEnabled() {
		if err := a.connectArchive(ctx, cfg.DatabaseURL); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.EventsEnabled() {
		if err := a.connectEvents(ctx, cfg.RabbitMQURL); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// connectArchive подключает архив runs.
func (a *App) connectArchive(ctx context.Context, dsn string) error {
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool

	runRepo := repo.NewRunRepo(pool)
	if err := runRepo.EnsureSchema(ctx); err != nil {
		return err
	}
	a.Archive = runRepo

	archiver := repo.NewArchiver(runRepo, a.logger)
	a.Runner.Subscribe(archiver.Observe)
	a.workers = append(a.workers, archiver.Run)

	a.logger.Info("run archive enabled")
	return nil
}

// connectEvents подключает публикацию событий в RabbitMQ.
func (a *App) connectEvents(ctx context.Context, url string) error {
	conn, err := mq.Dial(url, a.logger)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	a.conn = conn

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}
	a.logger.Debug(mq.TopologyInfo())

	forwarder := mq.NewEventForwarder(mq.ForwarderConfig{
		Publisher: mq.NewPublisher(conn, a.logger),
		Logger:    a.logger,
	})
	a.Runner.Subscribe(forwarder.Observe)
	a.workers = append(a.workers, forwarder.Run)

	a.logger.Info("event bus enabled", "exchange", mq.ExchangeEvents)
	return nil
}

// Start запускает фоновые обработчики подписчиков в g.
// Обработчики работают до Shutdown, а не до отмены контекста сервиса:
// run.finished прерванного run должен успеть попасть в архив и шину.
func (a *App) Start(g *errgroup.Group) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWorkers = cancel
	for _, w := range a.workers {
		g.Go(func() error { return w(ctx) })
	}
}

// Shutdown ждёт завершения текущего run (не дольше ctx) и останавливает
// обработчики подписчиков. Накопленные события они дописывают сами.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Runner.Wait(ctx)
	if err != nil {
		a.logger.Warn("run did not finish before shutdown", "error", err)
	}
	if a.stopWorkers != nil {
		a.stopWorkers()
	}
	return err
}

// Health возвращает краткое состояние для /healthz:
// статус pipeline, архив и шина событий.
func (a *App) Health() string {
	archive := "off"
	if a.Archive != nil {
		archive = "on"
	}

	events := "off"
	if a.conn != nil {
		events = "disconnected"
		if a.conn.IsConnected() {
			events = "connected"
		}
	}

	return fmt.Sprintf("pipeline=%s archive=%s events=%s", a.Runner.Status(), archive, events)
}

// Close закрывает соединения с БД и RabbitMQ.
func (a *App) Close() {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Warn("close rabbitmq", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
