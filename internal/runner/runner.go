package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
)

const (
	// defaultCheckTimeout bounds one check execution against the store.
	defaultCheckTimeout = 2 * time.Minute
	// sampleRowLimit caps the diagnostic preview fetched for failing checks.
	sampleRowLimit = 50
)

// TabularStore executes already-bound query text against the external
// tabular store. Implementations own execution semantics and access control.
type TabularStore interface {
	// CountViolations runs the query and returns how many violating rows it
	// selects.
	CountViolations(ctx context.Context, query string) (int64, error)

	// FetchSample returns up to limit violating rows as column-name keyed
	// maps.
	FetchSample(ctx context.Context, query string, limit int) ([]map[string]any, error)
}

// CheckRunner executes bound checks one at a time and classifies outcomes.
type CheckRunner struct {
	store        TabularStore
	logger       *slog.Logger
	checkTimeout time.Duration
}

// NewCheckRunner creates a runner over the given store. A nil logger
// discards output.
func NewCheckRunner(store TabularStore, logger *slog.Logger) *CheckRunner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &CheckRunner{
		store:        store,
		logger:       logger,
		checkTimeout: defaultCheckTimeout,
	}
}

// Run executes one bound check. A non-zero violation count is FAIL, a store
// failure is ERROR with the underlying message, zero violations is PASS.
// Failing checks get a bounded sample of offending rows; a sample fetch
// failing on its own keeps the FAIL with an empty sample.
func (r *CheckRunner) Run(ctx context.Context, check catalog.BoundCheck) CheckResult {
	result := CheckResult{
		CheckID:       check.CheckID,
		Name:          check.Name,
		Category:      check.Category,
		Severity:      check.Severity,
		Source:        check.Source,
		ExecutedQuery: check.Query,
	}

	checkCtx, cancel := context.WithTimeout(ctx, r.checkTimeout)
	defer cancel()

	start := time.Now()
	count, err := r.store.CountViolations(checkCtx, check.Query)
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = StatusError
		result.ErrorMessage = err.Error()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(checkCtx.Err(), context.DeadlineExceeded) {
			result.ErrorMessage = "check timed out after " + r.checkTimeout.String() + ": " + err.Error()
		}

		r.logger.Error("check execution failed",
			slog.String("check_id", check.CheckID),
			slog.String("error", result.ErrorMessage),
		)

		return result
	}

	result.RowsAffected = count

	if count == 0 {
		result.Status = StatusPass

		return result
	}

	result.Status = StatusFail
	result.SampleRows = r.fetchSample(ctx, check)

	r.logger.Warn("check failed",
		slog.String("check_id", check.CheckID),
		slog.String("severity", string(check.Severity)),
		slog.Int64("rows_affected", count),
	)

	return result
}

func (r *CheckRunner) fetchSample(ctx context.Context, check catalog.BoundCheck) []map[string]any {
	sampleCtx, cancel := context.WithTimeout(ctx, r.checkTimeout)
	defer cancel()

	sample, err := r.store.FetchSample(sampleCtx, check.Query, sampleRowLimit)
	if err != nil {
		r.logger.Warn("sample fetch failed, reporting failure without rows",
			slog.String("check_id", check.CheckID),
			slog.String("error", err.Error()),
		)

		return nil
	}

	return sample
}
