package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	MaxWarmStyles = 32
)

// WarmRequest asks for a set of styles of one origin image to be computed
// ahead of the first read.
type WarmRequest struct {
	Filename   string   `json:"filename"`
	Styles     []string `json:"styles"`
	WebhookURL string   `json:"webhook_url,omitempty"`
}

type StyleResult struct {
	Style   string `json:"style"`
	Outcome string `json:"outcome"`
	Key     string `json:"key,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
	Error   string `json:"error,omitempty"`
}

type WarmJob struct {
	ID         string        `json:"id"`
	Status     string        `json:"status"`
	Filename   string        `json:"filename"`
	Styles     []string      `json:"styles"`
	WebhookURL string        `json:"webhook_url,omitempty"`
	Results    []StyleResult `json:"results,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (r WarmRequest) Validate() error {
	filename := strings.TrimSpace(r.Filename)
	if filename == "" {
		return errors.New("filename is required")
	}
	if strings.Contains(filename, "/") {
		return fmt.Errorf("filename must not contain '/': %s", r.Filename)
	}
	if len(r.Styles) == 0 {
		return errors.New("styles must contain at least one entry")
	}
	if len(r.Styles) > MaxWarmStyles {
		return fmt.Errorf("styles must contain at most %d entries", MaxWarmStyles)
	}
	for i, s := range r.Styles {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("styles[%d] is empty", i)
		}
	}
	return nil
}

// Terminal reports whether the job has reached a final status.
func (j WarmJob) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
