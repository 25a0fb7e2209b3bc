package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingRecordsRouteAndStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	env := newTestEnv(t, WithTracer(provider.Tracer("test")))

	rec := env.do(http.MethodGet, "/images/missing.png/fit.10x10", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /images/{path...}", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.Int("http.response.status_code", http.StatusNotFound))
	assert.Contains(t, spans[0].Attributes, attribute.String("http.route", "/images/{path...}"))
}
