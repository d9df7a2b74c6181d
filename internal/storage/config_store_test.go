package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
)

func newMockConnection(t *testing.T) (*Connection, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	conn := &Connection{
		DB:     db,
		config: &Config{QueryTimeout: 30 * time.Second},
	}

	return conn, mock
}

func configRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"config_id", "dataset_name", "table_name", "shape_type", "primary_keys",
		"surrogate_key", "begin_date_column", "end_date_column", "active_flag_column",
		"custom_checks", "schedule", "active",
	})
}

func TestConfigStore_GetConfig(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewConfigStore(conn)

	rows := configRows().AddRow(
		"dim-user", "warehouse", "dim_user", "Type2", "{user_id}",
		"user_sk", "begin_eff_dt", "end_eff_dt", "is_current",
		`[{"name":"Flag Domain","query":"SELECT 1"}]`, "0 6 * * *", true,
	)

	mock.ExpectQuery(`SELECT(.|\n)+FROM validation_configs(.|\n)+WHERE config_id = \$1`).
		WithArgs("dim-user").
		WillReturnRows(rows)

	cfg, err := store.GetConfig(context.Background(), "dim-user")

	require.NoError(t, err)
	assert.Equal(t, "dim-user", cfg.ID)
	assert.Equal(t, catalog.ShapeType2, cfg.Shape)
	assert.Equal(t, []string{"user_id"}, cfg.PrimaryKeys)
	assert.Equal(t, "is_current", cfg.ActiveFlagColumn)
	require.Len(t, cfg.CustomChecks, 1)
	assert.Equal(t, "Flag Domain", cfg.CustomChecks[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigStore_GetConfig_NotFound(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewConfigStore(conn)

	mock.ExpectQuery(`SELECT(.|\n)+FROM validation_configs`).
		WithArgs("missing").
		WillReturnRows(configRows())

	_, err := store.GetConfig(context.Background(), "missing")

	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestConfigStore_ListConfigs_AppliesFilter(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewConfigStore(conn)

	rows := configRows().
		AddRow("dim-product", "warehouse", "dim_product", "Type1", "{product_id}",
			"", "", "", "", "[]", "", true).
		AddRow("dim-user", "warehouse", "dim_user", "Type2", "{user_id}",
			"user_sk", "begin_eff_dt", "end_eff_dt", "is_current", "[]", "", true)

	mock.ExpectQuery(`SELECT(.|\n)+FROM validation_configs(.|\n)+ORDER BY config_id`).
		WithArgs("warehouse", true).
		WillReturnRows(rows)

	configs, err := store.ListConfigs(context.Background(), catalog.ConfigFilter{
		Dataset:    "warehouse",
		OnlyActive: true,
	})

	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "dim-product", configs[0].ID)
	assert.Equal(t, "dim-user", configs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigStore_InsertConfig(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewConfigStore(conn)

	cfg := &catalog.ValidationConfig{
		ID:          "dim-product",
		Dataset:     "warehouse",
		Table:       "dim_product",
		Shape:       catalog.ShapeType1,
		PrimaryKeys: []string{"product_id"},
		Schedule:    "0 6 * * *",
		Active:      true,
	}

	mock.ExpectExec(`INSERT INTO validation_configs`).
		WithArgs(
			"dim-product", "warehouse", "dim_product", "Type1",
			pq.Array([]string{"product_id"}),
			"", "", "", "", []byte("null"), "0 6 * * *", true,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.InsertConfig(context.Background(), cfg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigStore_InsertConfig_Duplicate(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewConfigStore(conn)

	cfg := &catalog.ValidationConfig{
		ID:          "dim-product",
		Dataset:     "warehouse",
		Table:       "dim_product",
		Shape:       catalog.ShapeType1,
		PrimaryKeys: []string{"product_id"},
	}

	mock.ExpectExec(`INSERT INTO validation_configs`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.InsertConfig(context.Background(), cfg)

	require.ErrorIs(t, err, ErrConfigAlreadyExists)
}

func TestConfigStore_InsertConfig_RejectsInvalidRow(t *testing.T) {
	conn, _ := newMockConnection(t)
	store := NewConfigStore(conn)

	cfg := &catalog.ValidationConfig{
		ID:      "dim-product",
		Dataset: "warehouse",
		Table:   "dim_product",
		Shape:   catalog.ShapeType1,
	}

	err := store.InsertConfig(context.Background(), cfg)

	var cfgErr *catalog.ConfigurationError

	require.ErrorAs(t, err, &cfgErr)
}

func TestConfigStore_UpdateConfig_NotFound(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewConfigStore(conn)

	cfg := &catalog.ValidationConfig{
		ID:          "dim-product",
		Dataset:     "warehouse",
		Table:       "dim_product",
		Shape:       catalog.ShapeType1,
		PrimaryKeys: []string{"product_id"},
	}

	mock.ExpectExec(`UPDATE validation_configs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateConfig(context.Background(), cfg)

	require.ErrorIs(t, err, ErrConfigNotFound)
}
