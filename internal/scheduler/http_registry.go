package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tablesentry-io/tablesentry/internal/config"
)

const defaultRegistryTimeout = 15 * time.Second

// HTTPRegistryConfig holds connection settings for the external registry
// service.
type HTTPRegistryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LoadHTTPRegistryConfig reads registry settings from the environment.
func LoadHTTPRegistryConfig() *HTTPRegistryConfig {
	return &HTTPRegistryConfig{
		BaseURL: config.GetEnvStr("TABLESENTRY_SCHEDULER_URL", ""),
		Timeout: config.GetEnvDuration("TABLESENTRY_SCHEDULER_TIMEOUT", defaultRegistryTimeout),
	}
}

// HTTPJobRegistry talks to a REST job scheduling service. Every call carries
// the configured timeout.
type HTTPJobRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPJobRegistry creates a registry client for the given service.
func NewHTTPJobRegistry(cfg *HTTPRegistryConfig) *HTTPJobRegistry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRegistryTimeout
	}

	return &HTTPJobRegistry{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ListJobs fetches all registered jobs carrying the name prefix.
func (r *HTTPJobRegistry) ListJobs(ctx context.Context, namePrefix string) ([]JobRecord, error) {
	endpoint := r.baseURL + "/jobs?namePrefix=" + url.QueryEscape(namePrefix)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list returned status %d", ErrRegistryUnavailable, resp.StatusCode)
	}

	var payload struct {
		Jobs []JobRecord `json:"jobs"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode list response: %w", ErrRegistryUnavailable, err)
	}

	return payload.Jobs, nil
}

// CreateJob registers a new job.
func (r *HTTPJobRegistry) CreateJob(ctx context.Context, record JobRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", record.Name, err)
	}

	resp, err := r.do(ctx, http.MethodPost, r.baseURL+"/jobs", body)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, record.Name)
	default:
		return fmt.Errorf("%w: create %s returned status %d", ErrRegistryUnavailable, record.Name, resp.StatusCode)
	}
}

// UpdateJob replaces an existing job in place.
func (r *HTTPJobRegistry) UpdateJob(ctx context.Context, record JobRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", record.Name, err)
	}

	resp, err := r.do(ctx, http.MethodPut, r.baseURL+"/jobs/"+url.PathEscape(record.Name), body)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrJobNotFound, record.Name)
	default:
		return fmt.Errorf("%w: update %s returned status %d", ErrRegistryUnavailable, record.Name, resp.StatusCode)
	}
}

// DeleteJob removes a job by name.
func (r *HTTPJobRegistry) DeleteJob(ctx context.Context, name string) error {
	resp, err := r.do(ctx, http.MethodDelete, r.baseURL+"/jobs/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	default:
		return fmt.Errorf("%w: delete %s returned status %d", ErrRegistryUnavailable, name, resp.StatusCode)
	}
}

func (r *HTTPJobRegistry) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	return resp, nil
}
