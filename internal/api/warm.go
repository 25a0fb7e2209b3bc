package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelcache/internal/domain"
	"github.com/dunamismax/pixelcache/internal/id"
	"github.com/dunamismax/pixelcache/internal/queue"
)

func (s *Server) handleCreateWarmJob(w http.ResponseWriter, r *http.Request) {
	if s.queueClient == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cache warming is not enabled"})
		return
	}

	var req domain.WarmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	job := domain.WarmJob{
		ID:         id.New(),
		Status:     domain.JobStatusQueued,
		Filename:   strings.TrimSpace(req.Filename),
		Styles:     req.Styles,
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	logger := s.logger.With().Str("job_id", job.ID).Logger()

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		logger.Error().Err(err).Msg("create warm job failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}

	taskInfo, err := s.queueClient.EnqueueWarmCache(r.Context(), queue.WarmCachePayload{
		JobID:       job.ID,
		Filename:    job.Filename,
		Styles:      job.Styles,
		WebhookURL:  job.WebhookURL,
		RequestedAt: now,
	})
	if err != nil {
		logger.Error().Err(err).Msg("enqueue warm job failed")
		if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusFailed); err != nil {
			logger.Warn().Err(err).Msg("mark warm job failed")
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	logger.Info().
		Str("filename", job.Filename).
		Int("styles", len(job.Styles)).
		Str("queue", taskInfo.Queue).
		Msg("warm job enqueued")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"queue":      taskInfo.Queue,
		"task_id":    taskInfo.ID,
		"status_url": "/v1/warm/" + job.ID,
	})
}

func (s *Server) handleGetWarmJob(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cache warming is not enabled"})
		return
	}

	jobID := r.PathValue("id")
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("fetch warm job failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	writeJSON(w, http.StatusOK, job)
}
