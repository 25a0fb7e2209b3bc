package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelcache/internal/app"
	"github.com/dunamismax/pixelcache/internal/config"
	"github.com/dunamismax/pixelcache/internal/logging"
	"github.com/dunamismax/pixelcache/internal/pipeline"
	"github.com/dunamismax/pixelcache/internal/telemetry"
	"github.com/dunamismax/pixelcache/internal/webhook"
	"github.com/dunamismax/pixelcache/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger := logging.New("worker", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "pixelcache-worker", cfg.Tracing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatal().Err(err).Msg("image runtime startup failed")
	}
	defer pipeline.Shutdown()

	blobs, err := app.NewBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store setup failed")
	}
	images, err := app.NewPipeline(cfg, blobs, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("pipeline setup failed")
	}

	jobStore, closeJobStore, err := app.NewJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("job store setup failed")
	}
	defer func() {
		if err := closeJobStore(); err != nil {
			logger.Warn().Err(err).Msg("job store close failed")
		}
	}()

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, images, webhookClient, jobStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker setup failed")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Str("metrics_addr", cfg.Worker.MetricsAddr).
		Msg("starting worker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		srv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
	}
}
