package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
)

// ConfigSource supplies validation configuration rows. Rows are re-read on
// every run and never cached here.
type ConfigSource interface {
	ListConfigs(ctx context.Context, filter catalog.ConfigFilter) ([]catalog.ValidationConfig, error)
	GetConfig(ctx context.Context, id string) (*catalog.ValidationConfig, error)
}

// HistoryStore records completed runs as append-only entries.
type HistoryStore interface {
	AppendRun(ctx context.Context, result *BatchRunResult) error
}

// ResultSink receives completed runs for downstream consumers.
type ResultSink interface {
	Publish(ctx context.Context, result *BatchRunResult) error
}

// Orchestrator wires selection, execution, and result emission into the
// on-demand and scheduled entry points.
type Orchestrator struct {
	selector *catalog.Selector
	runner   *CheckRunner
	configs  ConfigSource
	history  HistoryStore
	sink     ResultSink
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator. History and sink may be nil when
// result emission is not wanted; a nil logger discards output.
func NewOrchestrator(
	selector *catalog.Selector,
	checkRunner *CheckRunner,
	configs ConfigSource,
	history HistoryStore,
	sink ResultSink,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Orchestrator{
		selector: selector,
		runner:   checkRunner,
		configs:  configs,
		history:  history,
		sink:     sink,
		logger:   logger,
	}
}

// RunOne runs all checks for the stored configuration with the given id.
func (o *Orchestrator) RunOne(
	ctx context.Context,
	configID string,
	trigger TriggerSource,
) (*BatchRunResult, error) {
	cfg, err := o.configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	return o.RunConfig(ctx, cfg, trigger)
}

// RunConfig runs all checks for a fully specified configuration row, stored
// or ad hoc. Configuration errors are returned to the caller; store-level
// failures of individual checks are folded into the result instead.
func (o *Orchestrator) RunConfig(
	ctx context.Context,
	cfg *catalog.ValidationConfig,
	trigger TriggerSource,
) (*BatchRunResult, error) {
	checks, err := o.selector.Select(cfg)
	if err != nil {
		return nil, err
	}

	result := &BatchRunResult{
		RunID:     uuid.NewString(),
		ConfigID:  cfg.ID,
		Dataset:   cfg.Dataset,
		Table:     cfg.Table,
		Shape:     cfg.Shape,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Checks:    make([]CheckResult, 0, len(checks)),
	}

	// Checks run sequentially in selection order so result ordering is
	// reproducible across runs.
	for _, check := range checks {
		result.Checks = append(result.Checks, o.runner.Run(ctx, check))
	}

	result.Status, result.Summary = Rollup(result.Checks)
	result.Duration = time.Since(result.StartedAt)

	o.logger.Info("run completed",
		slog.String("run_id", result.RunID),
		slog.String("config_id", cfg.ID),
		slog.String("status", string(result.Status)),
		slog.Int("checks", result.Summary.Total),
		slog.Int("failed", result.Summary.Failed),
		slog.Int("errored", result.Summary.Errored),
		slog.String("trigger", string(trigger)),
	)

	o.emit(ctx, result)

	return result, nil
}

// RunAll runs every active configuration row matching the filter,
// concurrently up to a fixed bound. A row that cannot run at all still
// contributes an ERROR entry so nothing drops out of the batch report.
func (o *Orchestrator) RunAll(
	ctx context.Context,
	filter catalog.ConfigFilter,
	trigger TriggerSource,
) ([]BatchRunResult, BatchStatus, error) {
	// Batch selection never executes inactive rows. They stay readable
	// through the configuration store for audit.
	filter.OnlyActive = true

	configs, err := o.configs.ListConfigs(ctx, filter)
	if err != nil {
		return nil, BatchHardFailure, fmt.Errorf("load configurations: %w", err)
	}

	var (
		mu      sync.Mutex
		results []BatchRunResult
	)

	pool := newTaskPool(maxConcurrentRuns, o.logger)

	for _, cfg := range configs {
		cfg := cfg

		pool.enqueue(cfg.ID, func() error {
			result, err := o.RunConfig(ctx, &cfg, trigger)
			if err != nil {
				result = &BatchRunResult{
					RunID:        uuid.NewString(),
					ConfigID:     cfg.ID,
					Dataset:      cfg.Dataset,
					Table:        cfg.Table,
					Shape:        cfg.Shape,
					Status:       StatusError,
					ErrorMessage: err.Error(),
					Trigger:      trigger,
					StartedAt:    time.Now().UTC(),
				}
			}

			mu.Lock()
			results = append(results, *result)
			mu.Unlock()

			return err
		})
	}

	pool.join()

	sort.Slice(results, func(i, j int) bool {
		return results[i].ConfigID < results[j].ConfigID
	})

	return results, SummarizeBatch(results), nil
}

// emit records the run in history and publishes it to the sink. Emission
// failures are logged and do not affect the returned result.
func (o *Orchestrator) emit(ctx context.Context, result *BatchRunResult) {
	if o.history != nil {
		if err := o.history.AppendRun(ctx, result); err != nil {
			o.logger.Error("failed to append run history",
				slog.String("run_id", result.RunID),
				slog.String("error", err.Error()),
			)
		}
	}

	if o.sink != nil {
		if err := o.sink.Publish(ctx, result); err != nil {
			o.logger.Error("failed to publish run result",
				slog.String("run_id", result.RunID),
				slog.String("error", err.Error()),
			)
		}
	}
}
