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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Displacement/internal/app"
	"github.com/shaiso/Displacement/internal/config"
	"github.com/shaiso/Displacement/internal/scheduler"
	"github.com/shaiso/Displacement/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("displacement-watcher")
	logger.Info("starting displacement-watcher")

	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	watcher, err := scheduler.New(scheduler.Config{
		Dir:        cfg.InboxDir,
		CronExpr:   cfg.InboxCron,
		Runner:     rt.Runner,
		Extensions: cfg.JobExtensions,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	// Health и metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", rt.Health())
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.WatcherAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	rt.Start(g)

	g.Go(func() error {
		return watcher.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("metrics listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		err := server.Shutdown(shutdownCtx)
		if waitErr := rt.Shutdown(shutdownCtx); err == nil {
			err = waitErr
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}
