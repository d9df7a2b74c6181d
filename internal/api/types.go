package api

import (
	"context"
	"strings"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
	"github.com/tablesentry-io/tablesentry/internal/runner"
	"github.com/tablesentry-io/tablesentry/internal/scheduler"
)

type (
	// RunService executes validation runs. Implemented by runner.Orchestrator.
	RunService interface {
		RunOne(ctx context.Context, configID string, trigger runner.TriggerSource) (*runner.BatchRunResult, error)
		RunConfig(ctx context.Context, cfg *catalog.ValidationConfig, trigger runner.TriggerSource) (*runner.BatchRunResult, error)
		RunAll(ctx context.Context, filter catalog.ConfigFilter, trigger runner.TriggerSource) ([]runner.BatchRunResult, runner.BatchStatus, error)
	}

	// SyncService converges the external job registry. Implemented by
	// scheduler.Reconciler.
	SyncService interface {
		Sync(ctx context.Context) (*scheduler.SyncReport, error)
	}

	// ConfigStore reads and writes validation configuration rows.
	ConfigStore interface {
		ListConfigs(ctx context.Context, filter catalog.ConfigFilter) ([]catalog.ValidationConfig, error)
		GetConfig(ctx context.Context, id string) (*catalog.ValidationConfig, error)
		InsertConfig(ctx context.Context, cfg *catalog.ValidationConfig) error
		UpdateConfig(ctx context.Context, cfg *catalog.ValidationConfig) error
	}

	// RunHistory lists persisted run results.
	RunHistory interface {
		ListRuns(ctx context.Context, configID string, limit int) ([]runner.BatchRunResult, error)
	}

	// RunRequest is the on-demand run payload. Exactly one of the three
	// modes applies: a stored config id, a fully specified ad hoc config,
	// or a batch specification. Batch runs only ever target active rows;
	// allActive requests a batch across every dataset.
	RunRequest struct {
		ConfigID string                    `json:"configId,omitempty"`
		Config   *catalog.ValidationConfig `json:"config,omitempty"`

		Dataset   string `json:"datasetName,omitempty"`
		AllActive bool   `json:"allActive,omitempty"`
	}

	// BatchRunResponse is the batch run payload: one result per row plus a
	// machine-readable overall status for automation exit-code mapping.
	BatchRunResponse struct {
		Status  runner.BatchStatus      `json:"status"`
		Results []runner.BatchRunResult `json:"results"`
	}

	// HistoryResponse wraps a run history listing.
	HistoryResponse struct {
		Runs []runner.BatchRunResult `json:"runs"`
	}

	// ChecksResponse lists the registered check templates.
	ChecksResponse struct {
		Templates []catalog.CheckTemplate `json:"templates"`
	}

	// Version represents the API version response structure.
	Version struct {
		Version     string `json:"version"`
		ServiceName string `json:"serviceName"`
		BuildInfo   string `json:"buildInfo,omitempty"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}
)

// hasJSONContentType checks if Content-Type header starts with
// "application/json", allowing charset parameters.
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
