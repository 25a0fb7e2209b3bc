package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "api", "info", "json")

	logger.Debug().Msg("hidden")
	logger.Info().Str("filename", "cat.png").Msg("request served")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "cat.png", entry["filename"])
	assert.Equal(t, "request served", entry["message"])
}

func TestParseLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "worker", "ERROR", "json")

	logger.Warn().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Error().Msg("kept")
	assert.NotZero(t, buf.Len())
}
