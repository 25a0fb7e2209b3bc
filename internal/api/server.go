package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dunamismax/pixelcache/internal/pipeline"
	"github.com/dunamismax/pixelcache/internal/queue"
	"github.com/dunamismax/pixelcache/internal/store"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ImageRunner serves one image request end to end.
type ImageRunner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

type warmEnqueuer interface {
	EnqueueWarmCache(ctx context.Context, payload queue.WarmCachePayload) (*asynq.TaskInfo, error)
}

type Server struct {
	logger                zerolog.Logger
	images                ImageRunner
	queueClient           warmEnqueuer
	jobStore              store.JobStore
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type Option func(*Server)

// WithWarmQueue enables the cache warming routes.
func WithWarmQueue(client warmEnqueuer, jobStore store.JobStore) Option {
	return func(s *Server) {
		s.queueClient = client
		s.jobStore = jobStore
	}
}

func WithRateLimiter(limiter RateLimiter, userIDHeader string) Option {
	return func(s *Server) {
		s.rateLimiter = limiter
		s.rateLimitUserIDHeader = userIDHeader
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

func NewServer(logger zerolog.Logger, images ImageRunner, opts ...Option) (*Server, error) {
	if images == nil {
		return nil, errors.New("image runner is required")
	}

	s := &Server{
		logger:                logger,
		images:                images,
		rateLimitUserIDHeader: "X-User-ID",
		metrics:               newMetrics(),
		tracer:                otel.Tracer("pixelcache/api"),
		mux:                   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if (s.queueClient == nil) != (s.jobStore == nil) {
		return nil, errors.New("warm queue and job store must be configured together")
	}

	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /images/{path...}", s.handleImage)
	s.mux.HandleFunc("POST /v1/invoke", s.handleInvoke)
	s.mux.HandleFunc("POST /v1/warm", s.handleCreateWarmJob)
	s.mux.HandleFunc("GET /v1/warm/{id}", s.handleGetWarmJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, into any) error {
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
