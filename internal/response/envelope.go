// Package response wraps pipeline results into the outbound envelope used by
// both the raw HTTP route and the proxy-event route.
package response

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dunamismax/pixelcache/internal/pipeline"
)

type Envelope struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
	Body            string            `json:"body"`
}

// Build wraps an image buffer into a 200 envelope with a base64 body.
func Build(data []byte, contentType string) Envelope {
	return Envelope{
		StatusCode:      http.StatusOK,
		Headers:         map[string]string{"Content-Type": contentType},
		IsBase64Encoded: true,
		Body:            base64.StdEncoding.EncodeToString(data),
	}
}

// Error builds a JSON error envelope.
func Error(status int, message string) Envelope {
	body, _ := json.Marshal(map[string]string{"error": message})
	return Envelope{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func FromOutcome(out pipeline.Outcome) Envelope {
	if out.Success() {
		return Build(out.Data, out.ContentType)
	}
	return Error(StatusCode(out.Kind), out.Kind.String())
}

func StatusCode(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindCacheHit, pipeline.KindFreshResult, pipeline.KindPassThrough:
		return http.StatusOK
	case pipeline.KindNotFound, pipeline.KindDeleted:
		return http.StatusNotFound
	case pipeline.KindFetchFailed:
		return http.StatusBadGateway
	case pipeline.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write renders e as a plain HTTP response, decoding base64 bodies.
func (e Envelope) Write(w http.ResponseWriter) error {
	body := []byte(e.Body)
	if e.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(e.Body)
		if err != nil {
			return err
		}
		body = decoded
	}

	for key, value := range e.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(e.StatusCode)
	_, err := w.Write(body)
	return err
}
