package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
	"github.com/tablesentry-io/tablesentry/internal/storage"
)

// handleListConfigs lists configuration rows, optionally narrowed by
// dataset and active flag.
func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	filter := catalog.ConfigFilter{
		Dataset:    r.URL.Query().Get("dataset"),
		OnlyActive: r.URL.Query().Get("active") == "true",
	}

	configs, err := s.configs.ListConfigs(r.Context(), filter)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to list configurations"))

		return
	}

	if configs == nil {
		configs = []catalog.ValidationConfig{}
	}

	s.writeJSON(w, r, http.StatusOK, configs)
}

// handleGetConfig returns one configuration row by id.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.GetConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrConfigNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound(err.Error()))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to load configuration"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, cfg)
}

// handleCreateConfig stores a new configuration row.
func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.decodeConfig(w, r)
	if !ok {
		return
	}

	if err := s.configs.InsertConfig(r.Context(), cfg); err != nil {
		s.writeConfigError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusCreated, cfg)
}

// handleUpdateConfig replaces an existing configuration row. The path id
// wins over any id in the body.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.decodeConfig(w, r)
	if !ok {
		return
	}

	cfg.ID = r.PathValue("id")

	if err := s.configs.UpdateConfig(r.Context(), cfg); err != nil {
		s.writeConfigError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, cfg)
}

func (s *Server) decodeConfig(w http.ResponseWriter, r *http.Request) (*catalog.ValidationConfig, bool) {
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be application/json"))

		return nil, false
	}

	var cfg catalog.ValidationConfig

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(body).Decode(&cfg); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Malformed configuration: "+err.Error()))

		return nil, false
	}

	return &cfg, true
}

func (s *Server) writeConfigError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *catalog.ConfigurationError

	switch {
	case errors.As(err, &cfgErr):
		WriteErrorResponse(w, r, s.logger, BadRequest(cfgErr.Error()))
	case errors.Is(err, storage.ErrConfigAlreadyExists):
		WriteErrorResponse(w, r, s.logger, Conflict(err.Error()))
	case errors.Is(err, storage.ErrConfigNotFound):
		WriteErrorResponse(w, r, s.logger, NotFound(err.Error()))
	default:
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to store configuration"))
	}
}
