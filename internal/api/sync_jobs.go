package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tablesentry-io/tablesentry/internal/api/middleware"
	"github.com/tablesentry-io/tablesentry/internal/scheduler"
)

// handleSyncJobs triggers one reconciliation pass. A state-load failure is
// a transient 503; partial item failures still return the full convergence
// report with the errored names listed.
func (s *Server) handleSyncJobs(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	report, err := s.sync.Sync(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrStateLoadFailed) {
			s.logger.Error("reconciliation aborted",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			WriteErrorResponse(w, r, s.logger, ServiceUnavailable(err.Error()))

			return
		}

		s.logger.Warn("reconciliation converged partially",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}

	s.writeJSON(w, r, http.StatusOK, report)
}
