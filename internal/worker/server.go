package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelcache/internal/config"
	"github.com/dunamismax/pixelcache/internal/domain"
	"github.com/dunamismax/pixelcache/internal/pipeline"
	"github.com/dunamismax/pixelcache/internal/queue"
	"github.com/dunamismax/pixelcache/internal/store"
	"github.com/dunamismax/pixelcache/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// styleParallelism bounds how many styles of one job run at the same time.
const styleParallelism = 4

type ImageRunner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

type webhookSender interface {
	SendWarmEvent(ctx context.Context, endpoint string, event webhook.WarmEvent) error
}

type Server struct {
	logger        zerolog.Logger
	server        *asynq.Server
	images        ImageRunner
	webhookClient webhookSender
	jobStore      store.JobStore
	metrics       *metrics
	tracer        trace.Tracer
	// retriesLeft reports whether asynq will run the task again after a
	// failure returned from this attempt.
	retriesLeft func(context.Context) bool
}

func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	images ImageRunner,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
) (*Server, error) {
	if images == nil {
		return nil, errors.New("image runner is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Error().
						Err(err).
						Str("type", task.Type()).
						Int("retry", retried).
						Int("max_retry", maxRetry).
						Msg("task failed")
				}),
			},
		),
		images:      images,
		jobStore:    jobStore,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("pixelcache/worker"),
		retriesLeft: asynqRetriesLeft,
	}
	// keep the interface nil rather than holding a typed nil pointer
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

// Start begins consuming tasks in the background. Call Shutdown to stop.
func (s *Server) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeWarmCache, s.handleWarmCache)
	return s.server.Start(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleWarmCache(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	status := domain.JobStatusFailed

	payload, err := queue.ParseWarmCachePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := s.logger.With().Str("job_id", payload.JobID).Str("filename", payload.Filename).Logger()

	ctx, span := s.tracer.Start(ctx, "worker.warm_cache", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("image.filename", payload.Filename),
		attribute.Int("job.styles", len(payload.Styles)),
	)
	defer span.End()

	s.metrics.activeJobs.Inc()
	defer func() {
		s.metrics.activeJobs.Dec()
		s.metrics.jobDuration.WithLabelValues(status).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(status).Inc()
	}()

	logger.Info().Int("styles", len(payload.Styles)).Msg("warming cache")
	s.updateJobStatus(ctx, logger, payload.JobID, domain.JobStatusProcessing)

	results, retryable := s.warm(ctx, payload)
	event := webhook.NewWarmEvent(payload.JobID, payload.Filename, payload.RequestedAt, results)

	if event.Failed > 0 {
		err := fmt.Errorf("%d of %d styles failed", event.Failed, len(results))
		span.RecordError(err)
		span.SetStatus(codes.Error, "warm failed")

		if retryable && s.retriesLeft != nil && s.retriesLeft(ctx) {
			// the job stays processing until the last attempt settles it
			status = "retrying"
			logger.Warn().Int("failed", event.Failed).Msg("warm attempt failed, retrying")
			return fmt.Errorf("warm cache: %w", err)
		}

		status = event.Status
		logger.Warn().Int("failed", event.Failed).Msg("warm job finished with failures")
		s.finishJob(ctx, logger, payload.JobID, status, results)
		_ = s.dispatchWebhook(ctx, logger, payload.WebhookURL, event)
		return fmt.Errorf("warm cache: %v: %w", err, asynq.SkipRetry)
	}

	status = event.Status
	s.finishJob(ctx, logger, payload.JobID, status, results)
	logger.Info().Dur("duration", time.Since(startedAt)).Msg("warm job finished")
	if err := s.dispatchWebhook(ctx, logger, payload.WebhookURL, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	span.SetStatus(codes.Ok, "warmed")
	return nil
}

// asynqRetriesLeft reads the retry budget asynq attaches to the handler
// context. Outside asynq there is no budget.
func asynqRetriesLeft(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried < maxRetry
}

// warm runs every style of payload through the pipeline. retryable reports
// whether any failure could succeed on a later attempt.
func (s *Server) warm(ctx context.Context, payload queue.WarmCachePayload) ([]domain.StyleResult, bool) {
	results := make([]domain.StyleResult, len(payload.Styles))
	kinds := make([]pipeline.Kind, len(payload.Styles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(styleParallelism)
	for i, token := range payload.Styles {
		g.Go(func() error {
			out := s.images.Run(gctx, pipeline.NewRequest(payload.Filename, token))
			kinds[i] = out.Kind
			results[i] = domain.StyleResult{
				Style:   token,
				Outcome: out.Kind.String(),
				Key:     out.Key,
			}
			if out.Success() {
				results[i].Bytes = len(out.Data)
			} else if out.Err != nil {
				results[i].Error = out.Err.Error()
			} else {
				results[i].Error = out.Kind.String()
			}
			return nil
		})
	}
	_ = g.Wait()

	retryable := false
	for i, kind := range kinds {
		s.metrics.stylesTotal.WithLabelValues(kind.String()).Inc()
		switch kind {
		case pipeline.KindFreshResult, pipeline.KindPassThrough:
			s.metrics.bytesWrittenTotal.Add(float64(results[i].Bytes))
		case pipeline.KindFetchFailed, pipeline.KindUploadFailed, pipeline.KindCanceled:
			retryable = true
		}
	}
	return results, retryable
}

func (s *Server) updateJobStatus(ctx context.Context, logger zerolog.Logger, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		logger.Warn().Err(err).Str("status", status).Msg("job status update failed")
	}
}

func (s *Server) finishJob(ctx context.Context, logger zerolog.Logger, jobID, status string, results []domain.StyleResult) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Finish(ctx, jobID, status, results); err != nil {
		logger.Warn().Err(err).Str("status", status).Msg("job finish failed")
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, logger zerolog.Logger, endpoint string, event webhook.WarmEvent) error {
	if endpoint == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.SendWarmEvent(ctx, endpoint, event); err != nil {
		logger.Error().Err(err).Str("status", event.Status).Msg("webhook delivery failed")
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}
