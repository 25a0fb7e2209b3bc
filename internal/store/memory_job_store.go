package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dunamismax/pixelcache/internal/domain"
)

type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.WarmJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.WarmJob),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.WarmJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.WarmJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return cloneJob(job), ok, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.WarmJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.WarmJob{}, ErrJobNotFound
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Finish(_ context.Context, id, status string, results []domain.StyleResult) (domain.WarmJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.WarmJob{}, ErrJobNotFound
	}

	job.Status = status
	job.Results = slices.Clone(results)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return cloneJob(job), nil
}

func cloneJob(job domain.WarmJob) domain.WarmJob {
	job.Styles = slices.Clone(job.Styles)
	job.Results = slices.Clone(job.Results)
	return job
}
