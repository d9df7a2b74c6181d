package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tablesentry-io/tablesentry/internal/api/middleware"
	"github.com/tablesentry-io/tablesentry/internal/catalog"
	"github.com/tablesentry-io/tablesentry/internal/runner"
	"github.com/tablesentry-io/tablesentry/internal/storage"
)

// handleRunChecks is the on-demand run entry point. The payload selects one
// of three modes: run a stored config by id, run a fully specified ad hoc
// config, or run a dataset/active batch.
func (s *Server) handleRunChecks(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be application/json"))

		return
	}

	var request RunRequest

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(body).Decode(&request); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Malformed run request: "+err.Error()))

		return
	}

	if request.ConfigID != "" && request.Config != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("configId and config are mutually exclusive"))

		return
	}

	switch {
	case request.ConfigID != "":
		result, err := s.runs.RunOne(r.Context(), request.ConfigID, runner.TriggerManual)
		if err != nil {
			s.writeRunError(w, r, correlationID, err)

			return
		}

		s.writeJSON(w, r, http.StatusOK, result)
	case request.Config != nil:
		result, err := s.runs.RunConfig(r.Context(), request.Config, runner.TriggerManual)
		if err != nil {
			s.writeRunError(w, r, correlationID, err)

			return
		}

		s.writeJSON(w, r, http.StatusOK, result)
	default:
		if request.Dataset == "" && !request.AllActive {
			WriteErrorResponse(w, r, s.logger,
				BadRequest("run request must carry configId, config, datasetName, or allActive"))

			return
		}

		filter := catalog.ConfigFilter{Dataset: request.Dataset, OnlyActive: true}

		results, status, err := s.runs.RunAll(r.Context(), filter, runner.TriggerManual)
		if err != nil {
			s.writeRunError(w, r, correlationID, err)

			return
		}

		s.writeJSON(w, r, http.StatusOK, BatchRunResponse{Status: status, Results: results})
	}
}

// writeRunError maps run failures onto problem responses.
func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, correlationID string, err error) {
	s.logger.Error("run request failed",
		slog.String("correlation_id", correlationID),
		slog.String("error", err.Error()),
	)

	var cfgErr *catalog.ConfigurationError

	switch {
	case errors.Is(err, storage.ErrConfigNotFound):
		WriteErrorResponse(w, r, s.logger, NotFound(err.Error()))
	case errors.As(err, &cfgErr):
		WriteErrorResponse(w, r, s.logger, BadRequest(cfgErr.Error()))
	default:
		WriteErrorResponse(w, r, s.logger, InternalServerError("Run execution failed"))
	}
}
