package runner

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
)

type fakeConfigSource struct {
	configs []catalog.ValidationConfig
}

func (f *fakeConfigSource) ListConfigs(
	_ context.Context,
	filter catalog.ConfigFilter,
) ([]catalog.ValidationConfig, error) {
	var out []catalog.ValidationConfig

	for _, cfg := range f.configs {
		if filter.Matches(&cfg) {
			out = append(out, cfg)
		}
	}

	return out, nil
}

func (f *fakeConfigSource) GetConfig(_ context.Context, id string) (*catalog.ValidationConfig, error) {
	for _, cfg := range f.configs {
		if cfg.ID == id {
			return &cfg, nil
		}
	}

	return nil, &catalog.ConfigurationError{ConfigID: id, Reason: "not found"}
}

type recordingHistory struct {
	mu   sync.Mutex
	runs []BatchRunResult
}

func (r *recordingHistory) AppendRun(_ context.Context, result *BatchRunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, *result)

	return nil
}

type recordingSink struct {
	mu        sync.Mutex
	published []BatchRunResult
}

func (r *recordingSink) Publish(_ context.Context, result *BatchRunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.published = append(r.published, *result)

	return nil
}

func scd1Config(id string) catalog.ValidationConfig {
	return catalog.ValidationConfig{
		ID:          id,
		Dataset:     "warehouse",
		Table:       "dim_" + id,
		Shape:       catalog.ShapeType1,
		PrimaryKeys: []string{"natural_id"},
		Active:      true,
	}
}

func scd2TestConfig(id string) catalog.ValidationConfig {
	return catalog.ValidationConfig{
		ID:               id,
		Dataset:          "warehouse",
		Table:            "dim_" + id,
		Shape:            catalog.ShapeType2,
		PrimaryKeys:      []string{"natural_id"},
		SurrogateKey:     "row_sk",
		BeginDateColumn:  "begin_eff_dt",
		EndDateColumn:    "end_eff_dt",
		ActiveFlagColumn: "is_current",
		Active:           true,
	}
}

// violationsMatching fails every check whose bound query contains the
// fragment, reporting the given count.
func violationsMatching(fragment string, count int64) *fakeStore {
	return &fakeStore{
		countFn: func(_ context.Context, query string) (int64, error) {
			if strings.Contains(query, fragment) {
				return count, nil
			}

			return 0, nil
		},
	}
}

func newOrchestrator(store TabularStore, source ConfigSource) (*Orchestrator, *recordingHistory, *recordingSink) {
	history := &recordingHistory{}
	sink := &recordingSink{}
	selector := catalog.NewSelector(catalog.NewRegistry(), nil)

	return NewOrchestrator(selector, NewCheckRunner(store, nil), source, history, sink, nil), history, sink
}

func TestRunOne_UnknownConfig(t *testing.T) {
	orchestrator, _, _ := newOrchestrator(&fakeStore{}, &fakeConfigSource{})

	_, err := orchestrator.RunOne(context.Background(), "ghost", TriggerManual)

	require.Error(t, err)
}

func TestRunConfig_CleanTablePasses(t *testing.T) {
	cfg := scd2TestConfig("user")
	orchestrator, history, sink := newOrchestrator(&fakeStore{}, &fakeConfigSource{})

	result, err := orchestrator.RunConfig(context.Background(), &cfg, TriggerManual)

	require.NoError(t, err)
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, result.Summary.Total, result.Summary.Passed)
	assert.Equal(t, TriggerManual, result.Trigger)

	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err)

	require.Len(t, history.runs, 1)
	require.Len(t, sink.published, 1)
	assert.Equal(t, result.RunID, history.runs[0].RunID)
}

func TestRunConfig_DuplicateNaturalKeysFail(t *testing.T) {
	// Four rows share duplicated keys, so the uniqueness check reports all of
	// them and the HIGH severity forces the run to FAIL.
	cfg := scd1Config("product")
	store := violationsMatching("HAVING COUNT(*) > 1", 4)
	orchestrator, _, _ := newOrchestrator(store, &fakeConfigSource{})

	result, err := orchestrator.RunConfig(context.Background(), &cfg, TriggerManual)

	require.NoError(t, err)
	assert.Equal(t, StatusFail, result.Status)

	var unique CheckResult

	for _, check := range result.Checks {
		if check.CheckID == "primary_key_unique" {
			unique = check
		}
	}

	assert.Equal(t, StatusFail, unique.Status)
	assert.GreaterOrEqual(t, unique.RowsAffected, int64(2))
}

func TestRunConfig_HistoryGapFails(t *testing.T) {
	cfg := scd2TestConfig("user")
	store := violationsMatching("end_date <> next_begin", 1)
	orchestrator, _, _ := newOrchestrator(store, &fakeConfigSource{})

	result, err := orchestrator.RunConfig(context.Background(), &cfg, TriggerScheduled)

	require.NoError(t, err)
	assert.Equal(t, StatusFail, result.Status)

	failed := make([]string, 0, 1)

	for _, check := range result.Checks {
		if check.Status == StatusFail {
			failed = append(failed, check.CheckID)
		}
	}

	assert.Equal(t, []string{"history_continuity"}, failed)
}

func TestRunConfig_MultipleCurrentRowsFail(t *testing.T) {
	cfg := scd2TestConfig("user")
	store := violationsMatching("active_count", 1)
	orchestrator, _, _ := newOrchestrator(store, &fakeConfigSource{})

	result, err := orchestrator.RunConfig(context.Background(), &cfg, TriggerManual)

	require.NoError(t, err)
	assert.Equal(t, StatusFail, result.Status)

	failed := make([]string, 0, 1)

	for _, check := range result.Checks {
		if check.Status == StatusFail {
			failed = append(failed, check.CheckID)
		}
	}

	assert.Equal(t, []string{"single_active_row"}, failed)
}

func TestRunConfig_ChecksExecuteInSelectionOrder(t *testing.T) {
	cfg := scd2TestConfig("user")
	orchestrator, _, _ := newOrchestrator(&fakeStore{}, &fakeConfigSource{})

	first, err := orchestrator.RunConfig(context.Background(), &cfg, TriggerManual)
	require.NoError(t, err)

	second, err := orchestrator.RunConfig(context.Background(), &cfg, TriggerManual)
	require.NoError(t, err)

	firstIDs := make([]string, 0, len(first.Checks))
	secondIDs := make([]string, 0, len(second.Checks))

	for _, check := range first.Checks {
		firstIDs = append(firstIDs, check.CheckID)
	}

	for _, check := range second.Checks {
		secondIDs = append(secondIDs, check.CheckID)
	}

	assert.Equal(t, firstIDs, secondIDs)
	assert.Equal(t, "table_exists", firstIDs[0])
}

func TestRunConfig_ConfigurationErrorPropagates(t *testing.T) {
	cfg := scd2TestConfig("user")
	cfg.EndDateColumn = ""
	orchestrator, history, _ := newOrchestrator(&fakeStore{}, &fakeConfigSource{})

	_, err := orchestrator.RunConfig(context.Background(), &cfg, TriggerManual)

	var cfgErr *catalog.ConfigurationError

	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, history.runs)
}

func TestRunAll_RunsEveryMatchingConfig(t *testing.T) {
	source := &fakeConfigSource{configs: []catalog.ValidationConfig{
		scd1Config("zeta"),
		scd1Config("alpha"),
		scd2TestConfig("user"),
	}}
	orchestrator, history, _ := newOrchestrator(&fakeStore{}, source)

	results, status, err := orchestrator.RunAll(context.Background(),
		catalog.ConfigFilter{OnlyActive: true}, TriggerManual)

	require.NoError(t, err)
	assert.Equal(t, BatchSuccess, status)
	require.Len(t, results, 3)
	// Batch output is ordered by config id regardless of completion order.
	assert.Equal(t, "alpha", results[0].ConfigID)
	assert.Equal(t, "user", results[1].ConfigID)
	assert.Equal(t, "zeta", results[2].ConfigID)
	assert.Len(t, history.runs, 3)
}

func TestRunAll_SkipsInactiveRows(t *testing.T) {
	retired := scd1Config("retired")
	retired.Active = false

	source := &fakeConfigSource{configs: []catalog.ValidationConfig{
		scd1Config("alpha"),
		retired,
	}}
	orchestrator, history, _ := newOrchestrator(&fakeStore{}, source)

	// The zero filter is what the API's default batch request produces;
	// inactive rows must stay out of it regardless.
	results, status, err := orchestrator.RunAll(context.Background(),
		catalog.ConfigFilter{}, TriggerManual)

	require.NoError(t, err)
	assert.Equal(t, BatchSuccess, status)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].ConfigID)
	assert.Len(t, history.runs, 1)
}

func TestRunAll_BadRowDoesNotAbortSiblings(t *testing.T) {
	bad := scd2TestConfig("broken")
	bad.ActiveFlagColumn = ""

	source := &fakeConfigSource{configs: []catalog.ValidationConfig{
		scd1Config("alpha"),
		bad,
	}}
	orchestrator, _, _ := newOrchestrator(&fakeStore{}, source)

	results, status, err := orchestrator.RunAll(context.Background(),
		catalog.ConfigFilter{}, TriggerManual)

	require.NoError(t, err)
	assert.Equal(t, BatchPartialFailure, status)
	require.Len(t, results, 2)
	assert.Equal(t, StatusPass, results[0].Status)
	assert.Equal(t, StatusError, results[1].Status)
	assert.NotEmpty(t, results[1].ErrorMessage)
}

func TestRunAll_BoundsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		current int
		peak    int
	)

	store := &fakeStore{
		countFn: func(context.Context, string) (int64, error) {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			defer func() {
				mu.Lock()
				current--
				mu.Unlock()
			}()

			return 0, nil
		},
	}

	source := &fakeConfigSource{}
	for i := 0; i < 40; i++ {
		source.configs = append(source.configs, scd1Config(uuid.NewString()))
	}

	orchestrator, _, _ := newOrchestrator(store, source)

	_, _, err := orchestrator.RunAll(context.Background(), catalog.ConfigFilter{}, TriggerManual)

	require.NoError(t, err)
	assert.LessOrEqual(t, peak, maxConcurrentRuns)
}
