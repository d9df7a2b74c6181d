package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
	"github.com/tablesentry-io/tablesentry/internal/config"
)

const (
	defaultJobNamePrefix = "tablesentry-"

	// masterJobSuffix names the self-healing job that triggers a full
	// reconciliation pass every hour.
	masterJobSuffix = "master-sync"

	// masterSchedule is the fixed hourly recurrence of the master job.
	masterSchedule = "0 * * * *"

	// jobNameHashLength is the hex suffix length keeping sanitized names
	// collision free.
	jobNameHashLength = 8
)

// ReconcilerConfig holds reconciliation settings.
type ReconcilerConfig struct {
	// JobNamePrefix scopes registry listings to our own jobs.
	JobNamePrefix string
	// CallbackBaseURL is where created jobs call back into this service.
	CallbackBaseURL string
}

// LoadReconcilerConfig reads reconciler settings from the environment.
func LoadReconcilerConfig() *ReconcilerConfig {
	return &ReconcilerConfig{
		JobNamePrefix:   config.GetEnvStr("TABLESENTRY_JOB_NAME_PREFIX", defaultJobNamePrefix),
		CallbackBaseURL: config.GetEnvStr("TABLESENTRY_CALLBACK_BASE_URL", "http://localhost:8080"),
	}
}

// ConfigLister supplies the configuration rows whose schedules are the
// desired state. Re-read on every pass, never cached here.
type ConfigLister interface {
	ListConfigs(ctx context.Context, filter catalog.ConfigFilter) ([]catalog.ValidationConfig, error)
}

// SyncReport is the convergence summary of one reconciliation pass. Every
// touched job name appears in exactly one list; nothing is silently dropped.
type SyncReport struct {
	Created   []string `json:"created"`
	Updated   []string `json:"updated"`
	Deleted   []string `json:"deleted"`
	Unchanged []string `json:"unchanged"`
	Errored   []string `json:"errored"`
}

// Reconciler converges the external job registry onto the schedules declared
// by active configuration rows. Each pass is stateless: desired and actual
// state are recomputed from scratch, and every step is idempotent so
// concurrent passes interleave safely.
type Reconciler struct {
	configs  ConfigLister
	registry JobRegistry
	cfg      *ReconcilerConfig
	logger   *slog.Logger
}

// NewReconciler creates a reconciler. A nil logger discards output.
func NewReconciler(
	configs ConfigLister,
	registry JobRegistry,
	cfg *ReconcilerConfig,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.JobNamePrefix == "" {
		cfg.JobNamePrefix = defaultJobNamePrefix
	}

	return &Reconciler{
		configs:  configs,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// JobName derives the stable registry name for one configuration row. The
// sanitized id keeps names readable, the hash suffix keeps distinct ids from
// colliding after sanitization.
func (r *Reconciler) JobName(configID string) string {
	digest := sha256.Sum256([]byte(configID))

	return r.cfg.JobNamePrefix + sanitizeName(configID) + "-" + hex.EncodeToString(digest[:])[:jobNameHashLength]
}

// MasterJobName is the fixed, reserved name of the hourly self-sync job.
func (r *Reconciler) MasterJobName() string {
	return r.cfg.JobNamePrefix + masterJobSuffix
}

// Sync runs one reconciliation pass. A failure to load desired or actual
// state aborts before anything is modified; per-item failures are recorded
// in the report and the pass continues. The report is always complete for
// whatever the pass attempted.
func (r *Reconciler) Sync(ctx context.Context) (*SyncReport, error) {
	desired, err := r.desiredState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: desired state: %w", ErrStateLoadFailed, err)
	}

	actualRecords, err := r.registry.ListJobs(ctx, r.cfg.JobNamePrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: actual state: %w", ErrStateLoadFailed, err)
	}

	actual := make(map[string]JobRecord, len(actualRecords))
	for _, record := range actualRecords {
		actual[record.Name] = record
	}

	report := &SyncReport{}

	var itemErrors *multierror.Error

	for _, want := range desired {
		have, exists := actual[want.Name]

		switch {
		case !exists:
			if err := r.createJob(ctx, want); err != nil {
				report.Errored = append(report.Errored, want.Name)
				itemErrors = multierror.Append(itemErrors, err)

				continue
			}

			report.Created = append(report.Created, want.Name)
		case have.CronExpression != want.CronExpression || have.CallbackTarget != want.CallbackTarget:
			if err := r.registry.UpdateJob(ctx, want); err != nil {
				report.Errored = append(report.Errored, want.Name)
				itemErrors = multierror.Append(itemErrors, fmt.Errorf("update %s: %w", want.Name, err))

				continue
			}

			report.Updated = append(report.Updated, want.Name)
		default:
			report.Unchanged = append(report.Unchanged, want.Name)
		}
	}

	for name := range actual {
		if _, wanted := desired[name]; wanted {
			continue
		}

		if err := r.deleteJob(ctx, name); err != nil {
			report.Errored = append(report.Errored, name)
			itemErrors = multierror.Append(itemErrors, err)

			continue
		}

		report.Deleted = append(report.Deleted, name)
	}

	r.logger.Info("reconciliation pass completed",
		slog.Int("created", len(report.Created)),
		slog.Int("updated", len(report.Updated)),
		slog.Int("deleted", len(report.Deleted)),
		slog.Int("unchanged", len(report.Unchanged)),
		slog.Int("errored", len(report.Errored)),
	)

	return report, itemErrors.ErrorOrNil()
}

// desiredState derives the wanted job set from active, schedule-bearing
// rows, plus the master job under its reserved name.
func (r *Reconciler) desiredState(ctx context.Context) (map[string]JobRecord, error) {
	rows, err := r.configs.ListConfigs(ctx, catalog.ConfigFilter{OnlyActive: true})
	if err != nil {
		return nil, err
	}

	desired := make(map[string]JobRecord, len(rows)+1)

	for _, row := range rows {
		if row.Schedule == "" {
			continue
		}

		name := r.JobName(row.ID)
		desired[name] = JobRecord{
			Name:           name,
			CronExpression: row.Schedule,
			CallbackTarget: r.cfg.CallbackBaseURL + "/api/v1/runs/scheduled?configId=" + url.QueryEscape(row.ID),
		}
	}

	master := r.MasterJobName()
	desired[master] = JobRecord{
		Name:           master,
		CronExpression: masterSchedule,
		CallbackTarget: r.cfg.CallbackBaseURL + "/api/v1/jobs/sync",
	}

	return desired, nil
}

// createJob tolerates a concurrent pass having created the job first.
func (r *Reconciler) createJob(ctx context.Context, record JobRecord) error {
	err := r.registry.CreateJob(ctx, record)
	if err == nil || isAlreadyExists(err) {
		return nil
	}

	return fmt.Errorf("create %s: %w", record.Name, err)
}

// deleteJob tolerates a concurrent pass having deleted the job first.
func (r *Reconciler) deleteJob(ctx context.Context, name string) error {
	err := r.registry.DeleteJob(ctx, name)
	if err == nil || isNotFound(err) {
		return nil
	}

	return fmt.Errorf("delete %s: %w", name, err)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, ErrJobAlreadyExists)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// sanitizeName lowercases the id and collapses anything outside [a-z0-9-]
// so the result is a legal registry job name segment.
func sanitizeName(id string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	return strings.Trim(b.String(), "-")
}
