package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Displacement/internal/api"
	"github.com/shaiso/Displacement/internal/app"
	"github.com/shaiso/Displacement/internal/config"
	"github.com/shaiso/Displacement/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "displacement_api_http_requests_total",
		Help: "Total HTTP requests handled by displacement_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("displacement-api")
	logger.Info("starting displacement-api")

	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Собираем pipeline и подписчиков
	rt, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// Архив опционален: nil-указатель не должен попасть в интерфейс
	var archive api.RunArchive
	if rt.Archive != nil {
		archive = rt.Archive
	}

	handler := api.NewHandler(api.Config{
		Runner:         rt.Runner,
		Archive:        archive,
		RunContext:     ctx,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s %s", time.Since(startTime), rt.Health())
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	rt.Start(g)

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown с таймаутом 10 секунд
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		err := server.Shutdown(shutdownCtx)

		// Прерванный run должен попасть в архив и шину до остановки обработчиков
		if waitErr := rt.Shutdown(shutdownCtx); err == nil {
			err = waitErr
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}
