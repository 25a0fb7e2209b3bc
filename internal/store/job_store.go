package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelcache/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.WarmJob) error
	Get(ctx context.Context, id string) (domain.WarmJob, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.WarmJob, error)
	// Finish records the per-style results together with the final status.
	Finish(ctx context.Context, id, status string, results []domain.StyleResult) (domain.WarmJob, error)
}
