package api

import (
	"net/http"

	"github.com/dunamismax/pixelcache/internal/pipeline"
	"github.com/dunamismax/pixelcache/internal/response"
)

type invokeRequest struct {
	Path string `json:"path"`
}

// handleImage serves /images/{filename}[/{style}] as a raw image response.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	env := s.serve(r, r.PathValue("path"))
	if err := env.Write(w); err != nil {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("write image response failed")
	}
}

// handleInvoke answers with the envelope itself, the shape a function proxy
// expects. Pipeline failures are carried inside the envelope, so the
// transport status is 200 whenever an envelope was produced.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.serve(r, req.Path))
}

func (s *Server) serve(r *http.Request, path string) response.Envelope {
	req, err := pipeline.ParsePath(path)
	if err != nil {
		return response.Error(http.StatusBadRequest, err.Error())
	}

	out := s.images.Run(r.Context(), req)
	s.metrics.pipelineOutcomes.WithLabelValues(out.Kind.String()).Inc()
	return response.FromOutcome(out)
}
