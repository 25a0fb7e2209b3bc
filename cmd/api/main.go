package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelcache/internal/api"
	"github.com/dunamismax/pixelcache/internal/app"
	"github.com/dunamismax/pixelcache/internal/config"
	"github.com/dunamismax/pixelcache/internal/logging"
	"github.com/dunamismax/pixelcache/internal/pipeline"
	"github.com/dunamismax/pixelcache/internal/queue"
	"github.com/dunamismax/pixelcache/internal/ratelimit"
	"github.com/dunamismax/pixelcache/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := logging.New("api", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "pixelcache-api", cfg.Tracing, logger)
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

	var opts []api.Option
	jobStore, closeJobStore, err := app.NewJobStore(ctx, cfg)
	switch {
	case errors.Is(err, app.ErrWarmingDisabled):
		logger.Warn().Err(err).Msg("warm routes disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("job store setup failed")
	default:
		defer func() {
			if err := closeJobStore(); err != nil {
				logger.Warn().Err(err).Msg("job store close failed")
			}
		}()

		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("queue client close failed")
			}
		}()
		opts = append(opts, api.WithWarmQueue(queueClient, jobStore))
	}

	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("rate limiter setup failed")
		}
		opts = append(opts, api.WithRateLimiter(limiter, cfg.RateLimit.Header))
	}

	srv, err := api.NewServer(logger, images, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("api setup failed")
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.API.Addr).
			Str("origin_bucket", cfg.Cache.OriginBucket).
			Str("cache_bucket", cfg.Cache.CacheBucket).
			Str("engine", cfg.Transform.Engine).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
