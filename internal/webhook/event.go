package webhook

import (
	"fmt"
	"time"

	"github.com/dunamismax/pixelcache/internal/domain"
)

const (
	EventWarmCompleted = "warm.completed"
	EventWarmFailed    = "warm.failed"
)

// WarmEvent is the body posted to a warm job's webhook once the job reaches
// a terminal status.
type WarmEvent struct {
	JobID       string               `json:"job_id"`
	Status      string               `json:"status"`
	Filename    string               `json:"filename"`
	Failed      int                  `json:"failed"`
	Results     []domain.StyleResult `json:"results"`
	RequestedAt time.Time            `json:"requested_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

// NewWarmEvent summarizes a finished job. The status is succeeded only when
// every style produced an image.
func NewWarmEvent(jobID, filename string, requestedAt time.Time, results []domain.StyleResult) WarmEvent {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	status := domain.JobStatusSucceeded
	if failed > 0 {
		status = domain.JobStatusFailed
	}

	return WarmEvent{
		JobID:       jobID,
		Status:      status,
		Filename:    filename,
		Failed:      failed,
		Results:     results,
		RequestedAt: requestedAt,
		FinishedAt:  time.Now().UTC(),
	}
}

// Name is the value sent in the event header.
func (e WarmEvent) Name() (string, error) {
	switch e.Status {
	case domain.JobStatusSucceeded:
		return EventWarmCompleted, nil
	case domain.JobStatusFailed:
		return EventWarmFailed, nil
	default:
		return "", fmt.Errorf("job %s is not finished: status %q", e.JobID, e.Status)
	}
}
