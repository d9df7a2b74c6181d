package api

import (
	"encoding/json"
	"net/http"

	"github.com/tablesentry-io/tablesentry/internal/api/middleware"
	"github.com/tablesentry-io/tablesentry/internal/runner"
)

// handleScheduledCallback is invoked exclusively by jobs the reconciler
// registered. The config id arrives as a query parameter on the callback
// URL; a JSON body with configId is accepted as well.
func (s *Server) handleScheduledCallback(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	configID := r.URL.Query().Get("configId")

	if configID == "" && hasJSONContentType(r.Header.Get("Content-Type")) {
		var payload struct {
			ConfigID string `json:"configId"`
		}

		body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		if err := json.NewDecoder(body).Decode(&payload); err == nil {
			configID = payload.ConfigID
		}
	}

	if configID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("configId is required"))

		return
	}

	result, err := s.runs.RunOne(r.Context(), configID, runner.TriggerScheduled)
	if err != nil {
		s.writeRunError(w, r, correlationID, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, result)
}
