package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)

	// Run endpoints
	mux.HandleFunc("POST /api/v1/runs", s.handleRunChecks)
	mux.HandleFunc("POST /api/v1/runs/scheduled", s.handleScheduledCallback)

	// Scheduler reconciliation
	mux.HandleFunc("POST /api/v1/jobs/sync", s.handleSyncJobs)

	// Configuration rows
	mux.HandleFunc("GET /api/v1/configs", s.handleListConfigs)
	mux.HandleFunc("POST /api/v1/configs", s.handleCreateConfig)
	mux.HandleFunc("GET /api/v1/configs/{id}", s.handleGetConfig)
	mux.HandleFunc("PUT /api/v1/configs/{id}", s.handleUpdateConfig)

	// Catalog and history
	mux.HandleFunc("GET /api/v1/checks", s.handleListChecks)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)

	// Catch-all handler for 404 responses
	mux.HandleFunc("/", s.handleNotFound)
}

// writeJSON marshals the payload and writes it with the given status.
// Marshal failures become 500 problems before any header is written.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response", slog.String("error", err.Error()))
	}
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: "tablesentry",
		Version:     serviceVersion,
		Uptime:      uptime,
	})
}

// handleVersion reports the service version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, Version{
		Version:     serviceVersion,
		ServiceName: "tablesentry",
	})
}

// handleListChecks lists every registered check template.
func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, ChecksResponse{Templates: s.registry.Templates()})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}
