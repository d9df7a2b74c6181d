package api

import (
	"net/http"
	"strconv"

	"github.com/tablesentry-io/tablesentry/internal/runner"
)

// handleHistory returns recent run results, newest first, optionally
// narrowed to one configuration id.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	configID := r.URL.Query().Get("configId")

	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteErrorResponse(w, r, s.logger, BadRequest("limit must be a non-negative integer"))

			return
		}

		limit = parsed
	}

	runs, err := s.history.ListRuns(r.Context(), configID, limit)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to load run history"))

		return
	}

	if runs == nil {
		runs = []runner.BatchRunResult{}
	}

	s.writeJSON(w, r, http.StatusOK, HistoryResponse{Runs: runs})
}
