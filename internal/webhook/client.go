package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Pixelcache-Signature"
	HeaderTimestamp = "X-Pixelcache-Timestamp"
	HeaderEvent     = "X-Pixelcache-Event"
	HeaderJobID     = "X-Pixelcache-Job"
)

// errRejected marks a response the receiver will not change its mind about.
var errRejected = errors.New("webhook rejected")

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client delivers signed warm events.
type Client struct {
	http        *http.Client
	secret      string
	attempts    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

func NewClient(cfg Config) *Client {
	c := &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		secret:      cfg.SigningSecret,
		attempts:    max(1, cfg.MaxAttempts),
		baseBackoff: cfg.InitialBackoff,
		maxBackoff:  cfg.MaxBackoff,
		now:         time.Now,
	}
	if c.http.Timeout <= 0 {
		c.http.Timeout = 10 * time.Second
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = time.Second
	}
	c.maxBackoff = max(c.maxBackoff, c.baseBackoff)
	return c
}

// SendWarmEvent posts event to endpoint. An empty endpoint is a no-op.
func (c *Client) SendWarmEvent(ctx context.Context, endpoint string, event WarmEvent) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	name, err := event.Name()
	if err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s for job %s: %w", name, event.JobID, err)
	}

	timestamp := strconv.FormatInt(c.now().UTC().Unix(), 10)
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set(HeaderEvent, name)
	headers.Set(HeaderJobID, event.JobID)
	headers.Set(HeaderTimestamp, timestamp)
	headers.Set(HeaderSignature, Sign(c.secret, timestamp, body))

	if err := c.deliver(ctx, endpoint, headers, body); err != nil {
		return fmt.Errorf("deliver %s for job %s: %w", name, event.JobID, err)
	}
	return nil
}

// deliver retries transport errors, 5xx, 408 and 429 with capped
// exponential backoff. Other 4xx answers stop immediately.
func (c *Client) deliver(ctx context.Context, endpoint string, headers http.Header, body []byte) error {
	var lastErr error
	for attempt := range c.attempts {
		if attempt > 0 {
			timer := time.NewTimer(c.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		lastErr = c.post(ctx, endpoint, headers, body)
		if lastErr == nil || errors.Is(lastErr, errRejected) {
			return lastErr
		}
	}
	return fmt.Errorf("%d attempts: %w", c.attempts, lastErr)
}

func (c *Client) post(ctx context.Context, endpoint string, headers http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errRejected, err)
	}
	req.Header = headers.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("receiver answered %d", code)
	default:
		return fmt.Errorf("%w: receiver answered %d", errRejected, code)
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseBackoff
	for i := 1; i < attempt && d < c.maxBackoff; i++ {
		d *= 2
	}
	return min(d, c.maxBackoff)
}

// Sign is the HMAC-SHA256 of "timestamp.body" keyed by secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature from the receiving side.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
