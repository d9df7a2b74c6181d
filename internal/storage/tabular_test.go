package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTabularStore_CountViolations_WrapsQueryInCount(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewTabularStore(conn)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \(SELECT \* FROM "warehouse"\."dim_user" WHERE "user_id" IS NULL\) AS violations`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.CountViolations(context.Background(),
		`SELECT * FROM "warehouse"."dim_user" WHERE "user_id" IS NULL`)

	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTabularStore_CountViolations_ZeroMeansClean(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewTabularStore(conn)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	count, err := store.CountViolations(context.Background(), `SELECT 1 AS probe WHERE 1 = 0`)

	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTabularStore_CountViolations_StoreError(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewTabularStore(conn)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM`).
		WillReturnError(errors.New(`relation "warehouse.dim_user" does not exist`))

	_, err := store.CountViolations(context.Background(), `SELECT * FROM "warehouse"."dim_user"`)

	require.ErrorIs(t, err, ErrStoreQueryFailed)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestTabularStore_FetchSample_ScansArbitraryColumns(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewTabularStore(conn)

	rows := sqlmock.NewRows([]string{"user_id", "begin_eff_dt"}).
		AddRow([]byte("u-1"), "2024-01-01").
		AddRow([]byte("u-2"), "2024-02-01")

	mock.ExpectQuery(`SELECT \* FROM \(.+\) AS violations LIMIT 50`).
		WillReturnRows(rows)

	sample, err := store.FetchSample(context.Background(),
		`SELECT * FROM "warehouse"."dim_user" WHERE "user_id" IS NULL`, 50)

	require.NoError(t, err)
	require.Len(t, sample, 2)
	assert.Equal(t, "u-1", sample[0]["user_id"])
	assert.Equal(t, "2024-01-01", sample[0]["begin_eff_dt"])
	assert.Equal(t, "u-2", sample[1]["user_id"])
}

func TestTabularStore_FetchSample_EmptyResult(t *testing.T) {
	conn, mock := newMockConnection(t)
	store := NewTabularStore(conn)

	mock.ExpectQuery(`SELECT \* FROM \(.+\) AS violations LIMIT 5`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	sample, err := store.FetchSample(context.Background(), `SELECT * FROM "t"`, 5)

	require.NoError(t, err)
	assert.Empty(t, sample)
}
