package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelcache/internal/domain"
	"github.com/dunamismax/pixelcache/internal/pipeline"
	"github.com/dunamismax/pixelcache/internal/ratelimit"
)

// Token prices. A styled request can run a full decode, resize and encode,
// an unstyled one only streams the original.
const (
	costPassThrough = 1
	costTransform   = 4
)

type RateLimiter interface {
	Take(ctx context.Context, key string, cost int) (ratelimit.Decision, error)
}

// requestClass groups routes that share a bucket per client.
type requestClass struct {
	name string
	cost int
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class, limited := classifyRequest(r)
		if !limited {
			next.ServeHTTP(w, r)
			return
		}

		key := s.clientID(r) + ":" + class.name
		decision, err := s.rateLimiter.Take(r.Context(), key, class.cost)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		w.Header().Set("X-RateLimit-Cost", strconv.Itoa(class.cost))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		seconds := int((decision.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(max(1, seconds)))
		s.metrics.rateLimitRejected.WithLabelValues(class.name).Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded for " + class.name,
		})
	})
}

// clientID prefers the configured identity header and falls back to the
// caller's address.
func (s *Server) clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "anonymous"
	}
	return host
}

// classifyRequest prices a request. Health, metrics and job lookups are free.
func classifyRequest(r *http.Request) (requestClass, bool) {
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/images/"):
		return imageClass("images", strings.TrimPrefix(r.URL.Path, "/images/")), true
	case r.Method == http.MethodPost && r.URL.Path == "/v1/invoke":
		var body invokeRequest
		peekJSON(r, &body)
		return imageClass("invoke", body.Path), true
	case r.Method == http.MethodPost && r.URL.Path == "/v1/warm":
		var body domain.WarmRequest
		peekJSON(r, &body)
		return requestClass{name: "warm", cost: max(1, len(body.Styles)) * costTransform}, true
	default:
		return requestClass{}, false
	}
}

func imageClass(name, path string) requestClass {
	req, err := pipeline.ParsePath(path)
	if err != nil || !req.Spec.Valid() {
		return requestClass{name: name, cost: costPassThrough}
	}
	return requestClass{name: name, cost: costTransform}
}

// peekJSON decodes the body leniently and puts it back for the handler,
// which does the strict decode.
func peekJSON(r *http.Request, into any) {
	if r.Body == nil {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return
	}
	_ = json.Unmarshal(body, into)
}
