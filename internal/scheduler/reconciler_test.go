package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
)

type staticConfigLister struct {
	configs []catalog.ValidationConfig
	err     error
}

func (s *staticConfigLister) ListConfigs(
	_ context.Context,
	filter catalog.ConfigFilter,
) ([]catalog.ValidationConfig, error) {
	if s.err != nil {
		return nil, s.err
	}

	var out []catalog.ValidationConfig

	for _, cfg := range s.configs {
		if filter.Matches(&cfg) {
			out = append(out, cfg)
		}
	}

	return out, nil
}

func scheduledConfig(id, schedule string) catalog.ValidationConfig {
	return catalog.ValidationConfig{
		ID:          id,
		Dataset:     "warehouse",
		Table:       "dim_" + id,
		Shape:       catalog.ShapeType1,
		PrimaryKeys: []string{"id"},
		Schedule:    schedule,
		Active:      true,
	}
}

func newTestReconciler(lister ConfigLister, registry JobRegistry) *Reconciler {
	return NewReconciler(lister, registry, &ReconcilerConfig{
		JobNamePrefix:   "tablesentry-",
		CallbackBaseURL: "http://qa.internal:8080",
	}, nil)
}

func registryNames(t *testing.T, registry JobRegistry, prefix string) []string {
	t.Helper()

	records, err := registry.ListJobs(context.Background(), prefix)
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.Name)
	}

	sort.Strings(names)

	return names
}

func TestSync_ConvergesEmptyRegistryToDesiredState(t *testing.T) {
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{
		scheduledConfig("dim-user", "0 6 * * *"),
		scheduledConfig("dim-product", "30 7 * * *"),
	}}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	report, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Len(t, report.Created, 3)
	assert.Empty(t, report.Errored)

	expected := []string{
		reconciler.JobName("dim-product"),
		reconciler.JobName("dim-user"),
		reconciler.MasterJobName(),
	}
	sort.Strings(expected)

	assert.Equal(t, expected, registryNames(t, registry, "tablesentry-"))
}

func TestSync_SecondPassIsFixedPoint(t *testing.T) {
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{
		scheduledConfig("dim-user", "0 6 * * *"),
	}}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	_, err := reconciler.Sync(context.Background())
	require.NoError(t, err)

	report, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Empty(t, report.Updated)
	assert.Empty(t, report.Deleted)
	assert.Len(t, report.Unchanged, 2)
}

func TestSync_RepeatedPassesEquivalentToOne(t *testing.T) {
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{
		scheduledConfig("dim-user", "0 6 * * *"),
		scheduledConfig("dim-account", "15 3 * * *"),
	}}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	_, err := reconciler.Sync(context.Background())
	require.NoError(t, err)

	after := registryNames(t, registry, "tablesentry-")

	for i := 0; i < 5; i++ {
		_, err := reconciler.Sync(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, after, registryNames(t, registry, "tablesentry-"))
}

func TestSync_UpdatesChangedSchedule(t *testing.T) {
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{
		scheduledConfig("dim-user", "0 6 * * *"),
	}}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	_, err := reconciler.Sync(context.Background())
	require.NoError(t, err)

	lister.configs[0].Schedule = "45 5 * * *"

	report, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{reconciler.JobName("dim-user")}, report.Updated)

	records, err := registry.ListJobs(context.Background(), "tablesentry-")
	require.NoError(t, err)

	for _, record := range records {
		if record.Name == reconciler.JobName("dim-user") {
			assert.Equal(t, "45 5 * * *", record.CronExpression)
		}
	}
}

func TestSync_DeletesExactlyTheOrphan(t *testing.T) {
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{
		scheduledConfig("dim-user", "0 6 * * *"),
	}}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	orphan := reconciler.JobName("dim-removed")
	require.NoError(t, registry.CreateJob(context.Background(), JobRecord{
		Name:           orphan,
		CronExpression: "0 9 * * *",
		CallbackTarget: "http://qa.internal:8080/api/v1/runs/scheduled?configId=dim-removed",
	}))

	report, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, report.Deleted)
	assert.NotContains(t, registryNames(t, registry, "tablesentry-"), orphan)
	assert.Contains(t, registryNames(t, registry, "tablesentry-"), reconciler.JobName("dim-user"))
}

func TestSync_IgnoresJobsOutsideNamingConvention(t *testing.T) {
	lister := &staticConfigLister{}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	foreign := JobRecord{Name: "payroll-nightly", CronExpression: "0 2 * * *"}
	require.NoError(t, registry.CreateJob(context.Background(), foreign))

	_, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"payroll-nightly"}, registryNames(t, registry, "payroll-"))
}

func TestSync_RecreatesDeletedMasterJob(t *testing.T) {
	lister := &staticConfigLister{}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	_, err := reconciler.Sync(context.Background())
	require.NoError(t, err)

	require.NoError(t, registry.DeleteJob(context.Background(), reconciler.MasterJobName()))

	report, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{reconciler.MasterJobName()}, report.Created)
}

func TestSync_SkipsRowsWithoutSchedule(t *testing.T) {
	unscheduled := scheduledConfig("dim-adhoc", "")
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{unscheduled}}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	_, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{reconciler.MasterJobName()}, registryNames(t, registry, "tablesentry-"))
}

func TestSync_ConfigListFailureAbortsPass(t *testing.T) {
	lister := &staticConfigLister{err: errors.New("metadata db unreachable")}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	report, err := reconciler.Sync(context.Background())

	require.ErrorIs(t, err, ErrStateLoadFailed)
	assert.Nil(t, report)
	assert.Empty(t, registryNames(t, registry, "tablesentry-"))
}

type flakyRegistry struct {
	*MemoryJobRegistry
	failCreates map[string]bool
}

func (f *flakyRegistry) CreateJob(ctx context.Context, record JobRecord) error {
	if f.failCreates[record.Name] {
		return errors.New("quota exceeded")
	}

	return f.MemoryJobRegistry.CreateJob(ctx, record)
}

func TestSync_ItemFailureDoesNotAbortPass(t *testing.T) {
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{
		scheduledConfig("dim-user", "0 6 * * *"),
		scheduledConfig("dim-product", "30 7 * * *"),
	}}
	reconciler := newTestReconciler(lister, nil)

	registry := &flakyRegistry{
		MemoryJobRegistry: NewMemoryJobRegistry(),
		failCreates:       map[string]bool{reconciler.JobName("dim-user"): true},
	}
	reconciler.registry = registry

	report, err := reconciler.Sync(context.Background())

	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, []string{reconciler.JobName("dim-user")}, report.Errored)
	assert.Contains(t, registryNames(t, registry, "tablesentry-"), reconciler.JobName("dim-product"))
	assert.Contains(t, registryNames(t, registry, "tablesentry-"), reconciler.MasterJobName())
}

func TestSync_ConcurrentCreateTreatedAsConverged(t *testing.T) {
	lister := &staticConfigLister{configs: []catalog.ValidationConfig{
		scheduledConfig("dim-user", "0 6 * * *"),
	}}
	registry := NewMemoryJobRegistry()
	reconciler := newTestReconciler(lister, registry)

	// Another pass already created the job with identical content.
	desired, err := reconciler.desiredState(context.Background())
	require.NoError(t, err)

	for _, record := range desired {
		require.NoError(t, registry.CreateJob(context.Background(), record))
	}

	report, err := reconciler.Sync(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Errored)
	assert.Empty(t, report.Created)
}

func TestJobName_StableAndCollisionResistant(t *testing.T) {
	reconciler := newTestReconciler(&staticConfigLister{}, NewMemoryJobRegistry())

	assert.Equal(t, reconciler.JobName("Dim User"), reconciler.JobName("Dim User"))
	// Ids that sanitize identically still get distinct names.
	assert.NotEqual(t, reconciler.JobName("Dim User"), reconciler.JobName("dim_user"))
	assert.NotContains(t, reconciler.JobName("Dim User"), " ")
}
