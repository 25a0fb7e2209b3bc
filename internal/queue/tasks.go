package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeWarmCache = "cache:warm"

// WarmCachePayload carries one warm job. Styles are raw style tokens as they
// would appear in a request path.
type WarmCachePayload struct {
	JobID       string    `json:"job_id"`
	Filename    string    `json:"filename"`
	Styles      []string  `json:"styles"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewWarmCacheTask(payload WarmCachePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal warm payload: %w", err)
	}
	return asynq.NewTask(TypeWarmCache, body), nil
}

func ParseWarmCachePayload(task *asynq.Task) (WarmCachePayload, error) {
	var payload WarmCachePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WarmCachePayload{}, fmt.Errorf("unmarshal warm payload: %w", err)
	}
	return payload, nil
}
