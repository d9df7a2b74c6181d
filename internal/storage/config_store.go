package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lib/pq"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
	"github.com/tablesentry-io/tablesentry/internal/config"
)

// Sentinel errors for configuration storage operations.
var (
	// ErrConfigNotFound is returned when no configuration row has the requested id.
	ErrConfigNotFound = errors.New("validation config not found")

	// ErrConfigAlreadyExists is returned when inserting a configuration id that is already present.
	ErrConfigAlreadyExists = errors.New("validation config already exists")

	// ErrConfigStoreFailed is returned when a configuration storage operation fails.
	ErrConfigStoreFailed = errors.New("validation config storage failed")
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

const configColumns = `
	config_id,
	dataset_name,
	table_name,
	shape_type,
	primary_keys,
	COALESCE(surrogate_key, ''),
	COALESCE(begin_date_column, ''),
	COALESCE(end_date_column, ''),
	COALESCE(active_flag_column, ''),
	COALESCE(custom_checks, '[]'),
	COALESCE(schedule, ''),
	active`

// ConfigStore reads and writes validation configuration rows. The rows are
// the single source of truth for both runs and scheduler reconciliation;
// callers re-read them every pass and never cache across passes.
type ConfigStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewConfigStore creates a PostgreSQL-backed configuration store.
func NewConfigStore(conn *Connection) *ConfigStore {
	return &ConfigStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("TABLESENTRY_LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// ListConfigs returns all configuration rows matching the filter, ordered by
// config id for deterministic batch runs.
func (s *ConfigStore) ListConfigs(
	ctx context.Context,
	filter catalog.ConfigFilter,
) ([]catalog.ValidationConfig, error) {
	query := `SELECT ` + configColumns + `
		FROM validation_configs
		WHERE ($1 = '' OR dataset_name = $1)
		  AND (NOT $2 OR active)
		ORDER BY config_id`

	rows, err := s.conn.QueryContext(ctx, query, filter.Dataset, filter.OnlyActive)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrConfigStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var configs []catalog.ValidationConfig

	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrConfigStoreFailed, err)
		}

		configs = append(configs, *cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %w", ErrConfigStoreFailed, err)
	}

	return configs, nil
}

// GetConfig returns the configuration row with the given id, or
// ErrConfigNotFound.
func (s *ConfigStore) GetConfig(ctx context.Context, id string) (*catalog.ValidationConfig, error) {
	query := `SELECT ` + configColumns + `
		FROM validation_configs
		WHERE config_id = $1`

	rows, err := s.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get: %w", ErrConfigStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: get: %w", ErrConfigStoreFailed, err)
		}

		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}

	cfg, err := scanConfig(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrConfigStoreFailed, err)
	}

	return cfg, nil
}

// InsertConfig stores a new configuration row after validating its shape
// invariants.
func (s *ConfigStore) InsertConfig(ctx context.Context, cfg *catalog.ValidationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	customJSON, err := json.Marshal(cfg.CustomChecks)
	if err != nil {
		return fmt.Errorf("%w: marshal custom checks: %w", ErrConfigStoreFailed, err)
	}

	query := `
		INSERT INTO validation_configs (
			config_id,
			dataset_name,
			table_name,
			shape_type,
			primary_keys,
			surrogate_key,
			begin_date_column,
			end_date_column,
			active_flag_column,
			custom_checks,
			schedule,
			active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.conn.ExecContext(ctx, query,
		cfg.ID,
		cfg.Dataset,
		cfg.Table,
		string(cfg.Shape),
		pq.Array(cfg.PrimaryKeys),
		cfg.SurrogateKey,
		cfg.BeginDateColumn,
		cfg.EndDateColumn,
		cfg.ActiveFlagColumn,
		customJSON,
		cfg.Schedule,
		cfg.Active,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrConfigAlreadyExists, cfg.ID)
		}

		return fmt.Errorf("%w: insert %s: %w", ErrConfigStoreFailed, cfg.ID, err)
	}

	s.logger.Info("validation config inserted",
		slog.String("config_id", cfg.ID),
		slog.String("dataset", cfg.Dataset),
		slog.String("table", cfg.Table),
		slog.String("shape", string(cfg.Shape)),
	)

	return nil
}

// UpdateConfig replaces an existing configuration row.
func (s *ConfigStore) UpdateConfig(ctx context.Context, cfg *catalog.ValidationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	customJSON, err := json.Marshal(cfg.CustomChecks)
	if err != nil {
		return fmt.Errorf("%w: marshal custom checks: %w", ErrConfigStoreFailed, err)
	}

	query := `
		UPDATE validation_configs SET
			dataset_name = $2,
			table_name = $3,
			shape_type = $4,
			primary_keys = $5,
			surrogate_key = $6,
			begin_date_column = $7,
			end_date_column = $8,
			active_flag_column = $9,
			custom_checks = $10,
			schedule = $11,
			active = $12,
			updated_at = CURRENT_TIMESTAMP
		WHERE config_id = $1
	`

	result, err := s.conn.ExecContext(ctx, query,
		cfg.ID,
		cfg.Dataset,
		cfg.Table,
		string(cfg.Shape),
		pq.Array(cfg.PrimaryKeys),
		cfg.SurrogateKey,
		cfg.BeginDateColumn,
		cfg.EndDateColumn,
		cfg.ActiveFlagColumn,
		customJSON,
		cfg.Schedule,
		cfg.Active,
	)
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrConfigStoreFailed, cfg.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrConfigStoreFailed, cfg.ID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, cfg.ID)
	}

	return nil
}

// scanConfig reads one configuration row from the current cursor position.
func scanConfig(rows *sql.Rows) (*catalog.ValidationConfig, error) {
	var (
		cfg        catalog.ValidationConfig
		shape      string
		keys       pq.StringArray
		customJSON []byte
	)

	err := rows.Scan(
		&cfg.ID,
		&cfg.Dataset,
		&cfg.Table,
		&shape,
		&keys,
		&cfg.SurrogateKey,
		&cfg.BeginDateColumn,
		&cfg.EndDateColumn,
		&cfg.ActiveFlagColumn,
		&customJSON,
		&cfg.Schedule,
		&cfg.Active,
	)
	if err != nil {
		return nil, err
	}

	cfg.Shape = catalog.ShapeType(shape)
	cfg.PrimaryKeys = []string(keys)

	if len(customJSON) > 0 {
		if err := json.Unmarshal(customJSON, &cfg.CustomChecks); err != nil {
			return nil, fmt.Errorf("parse custom checks for %s: %w", cfg.ID, err)
		}
	}

	return &cfg, nil
}
