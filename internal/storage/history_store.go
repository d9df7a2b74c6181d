package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tablesentry-io/tablesentry/internal/config"
	"github.com/tablesentry-io/tablesentry/internal/runner"
)

// ErrHistoryStoreFailed is returned when a run history operation fails.
var ErrHistoryStoreFailed = errors.New("run history storage failed")

// defaultHistoryLimit caps a history listing when the caller asks for
// everything.
const defaultHistoryLimit = 100

// RunHistoryStore persists completed runs as append-only rows. The full
// result document is kept as JSONB next to the queryable summary columns.
// With a retention window configured, rows older than the window are pruned
// after each append.
type RunHistoryStore struct {
	conn      *Connection
	retention time.Duration
	logger    *slog.Logger
}

// NewRunHistoryStore creates a PostgreSQL-backed run history store. The
// retention window comes from TABLESENTRY_HISTORY_RETENTION; zero keeps
// history forever.
func NewRunHistoryStore(conn *Connection) *RunHistoryStore {
	return &RunHistoryStore{
		conn:      conn,
		retention: config.GetEnvDuration("TABLESENTRY_HISTORY_RETENTION", 0),
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("TABLESENTRY_LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// AppendRun records one completed run.
func (s *RunHistoryStore) AppendRun(ctx context.Context, result *runner.BatchRunResult) error {
	document, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: marshal run %s: %w", ErrHistoryStoreFailed, result.RunID, err)
	}

	query := `
		INSERT INTO run_history (
			run_id,
			config_id,
			dataset_name,
			table_name,
			status,
			trigger_source,
			checks_total,
			checks_failed,
			checks_errored,
			started_at,
			duration_ms,
			result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.conn.ExecContext(ctx, query,
		result.RunID,
		result.ConfigID,
		result.Dataset,
		result.Table,
		string(result.Status),
		string(result.Trigger),
		result.Summary.Total,
		result.Summary.Failed,
		result.Summary.Errored,
		result.StartedAt,
		result.Duration.Milliseconds(),
		document,
	)
	if err != nil {
		return fmt.Errorf("%w: append run %s: %w", ErrHistoryStoreFailed, result.RunID, err)
	}

	s.applyRetention(ctx)

	return nil
}

// applyRetention prunes rows older than the retention window. Prune failures
// never fail the append that triggered them.
func (s *RunHistoryStore) applyRetention(ctx context.Context) {
	if s.retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-s.retention)

	pruned, err := s.PruneBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("failed to prune run history",
			slog.String("error", err.Error()),
		)

		return
	}

	if pruned > 0 {
		s.logger.Debug("pruned run history",
			slog.Int64("rows", pruned),
			slog.Time("cutoff", cutoff),
		)
	}
}

// ListRuns returns the most recent runs, newest first, optionally filtered
// to one configuration id. A non-positive limit applies the default cap.
func (s *RunHistoryStore) ListRuns(
	ctx context.Context,
	configID string,
	limit int,
) ([]runner.BatchRunResult, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT result
		FROM run_history
		WHERE ($1 = '' OR config_id = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := s.conn.QueryContext(ctx, query, configID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", ErrHistoryStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var results []runner.BatchRunResult

	for rows.Next() {
		var document []byte

		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("%w: scan run: %w", ErrHistoryStoreFailed, err)
		}

		var result runner.BatchRunResult

		if err := json.Unmarshal(document, &result); err != nil {
			return nil, fmt.Errorf("%w: parse run document: %w", ErrHistoryStoreFailed, err)
		}

		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate runs: %w", ErrHistoryStoreFailed, err)
	}

	return results, nil
}

// PruneBefore removes history rows older than the cutoff and reports how
// many were deleted.
func (s *RunHistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM run_history WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %w", ErrHistoryStoreFailed, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %w", ErrHistoryStoreFailed, err)
	}

	return deleted, nil
}
