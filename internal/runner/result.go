// Package runner executes bound checks against the external tabular store
// and aggregates their outcomes into run results.
package runner

import (
	"time"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
)

// CheckStatus classifies the outcome of one executed check.
type CheckStatus string

const (
	// StatusPass means the check's query found zero violating rows.
	StatusPass CheckStatus = "PASS"
	// StatusFail means the check's query found one or more violating rows.
	StatusFail CheckStatus = "FAIL"
	// StatusError means the check could not be executed (bad SQL, missing
	// table, permission denial, timeout).
	StatusError CheckStatus = "ERROR"
)

// TriggerSource records what initiated a run.
type TriggerSource string

const (
	// TriggerManual marks runs requested by a caller.
	TriggerManual TriggerSource = "Manual"
	// TriggerScheduled marks runs initiated by a scheduler callback.
	TriggerScheduled TriggerSource = "Scheduled"
)

// CheckResult is the outcome of executing one bound check.
type CheckResult struct {
	CheckID       string              `json:"checkId"`
	Name          string              `json:"name"`
	Category      string              `json:"category"`
	Severity      catalog.Severity    `json:"severity"`
	Source        catalog.CheckSource `json:"source"`
	Status        CheckStatus         `json:"status"`
	RowsAffected  int64               `json:"rowsAffected"`
	SampleRows    []map[string]any    `json:"sampleRows,omitempty"`
	ErrorMessage  string              `json:"errorMessage,omitempty"`
	ExecutedQuery string              `json:"executedQuery"`
	Duration      time.Duration       `json:"durationNs"`
}

// RunSummary counts per-check outcomes within one run.
type RunSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// BatchRunResult aggregates the check results for one configuration row's
// execution.
type BatchRunResult struct {
	RunID    string        `json:"runId"`
	ConfigID string        `json:"configId"`
	Dataset  string        `json:"datasetName"`
	Table    string        `json:"tableName"`
	Shape    catalog.ShapeType `json:"shapeType"`

	Status  CheckStatus   `json:"status"`
	Summary RunSummary    `json:"summary"`
	Checks  []CheckResult `json:"checks"`

	// ErrorMessage is set when the row could not be run at all, e.g. a
	// configuration error surfaced before any check executed.
	ErrorMessage string `json:"errorMessage,omitempty"`

	Trigger   TriggerSource `json:"triggerSource"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
}

// Rollup computes the summary counts and overall status from the per-check
// results. The run FAILs outright when any HIGH check failed or errored;
// otherwise any failure of any severity fails the run; an ERROR on a
// non-HIGH check stays visible in the counts without forcing FAIL.
func Rollup(checks []CheckResult) (CheckStatus, RunSummary) {
	summary := RunSummary{Total: len(checks)}
	status := StatusPass

	for _, check := range checks {
		switch check.Status {
		case StatusPass:
			summary.Passed++
		case StatusFail:
			summary.Failed++
		case StatusError:
			summary.Errored++
		}

		if check.Severity == catalog.SeverityHigh &&
			(check.Status == StatusFail || check.Status == StatusError) {
			status = StatusFail
		}
	}

	if status == StatusPass && summary.Failed > 0 {
		status = StatusFail
	}

	return status, summary
}

// BatchStatus maps a collection of run results to a machine-readable batch
// outcome for automation exit-code mapping.
type BatchStatus string

const (
	// BatchSuccess means every run passed.
	BatchSuccess BatchStatus = "success"
	// BatchPartialFailure means some runs passed and some did not.
	BatchPartialFailure BatchStatus = "partial-failure"
	// BatchHardFailure means no run passed.
	BatchHardFailure BatchStatus = "hard-failure"
)

// SummarizeBatch classifies a set of run results.
func SummarizeBatch(results []BatchRunResult) BatchStatus {
	if len(results) == 0 {
		return BatchSuccess
	}

	passed := 0

	for _, result := range results {
		if result.Status == StatusPass {
			passed++
		}
	}

	switch passed {
	case len(results):
		return BatchSuccess
	case 0:
		return BatchHardFailure
	default:
		return BatchPartialFailure
	}
}
