package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrStoreQueryFailed is returned when the tabular store cannot execute a
// bound check query.
var ErrStoreQueryFailed = errors.New("tabular store query failed")

// TabularStore executes bound check queries against the warehouse the
// validated tables live in. It shares the Connection machinery but is a
// separate pool in production, pointed at the warehouse rather than the
// metadata database.
type TabularStore struct {
	conn *Connection
}

// NewTabularStore creates a tabular store over the given connection.
func NewTabularStore(conn *Connection) *TabularStore {
	return &TabularStore{conn: conn}
}

// CountViolations wraps the bound query in a count so the store returns the
// number of violating rows without materializing them.
func (s *TabularStore) CountViolations(ctx context.Context, query string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.config.QueryTimeout)
	defer cancel()

	wrapped := `SELECT COUNT(*) FROM (` + query + `) AS violations`

	var count int64

	if err := s.conn.QueryRowContext(ctx, wrapped).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreQueryFailed, err)
	}

	return count, nil
}

// FetchSample returns up to limit violating rows as column-name keyed maps.
func (s *TabularStore) FetchSample(
	ctx context.Context,
	query string,
	limit int,
) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.config.QueryTimeout)
	defer cancel()

	wrapped := fmt.Sprintf(`SELECT * FROM (%s) AS violations LIMIT %d`, query, limit)

	rows, err := s.conn.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	sample, err := scanRowMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreQueryFailed, err)
	}

	return sample, nil
}

// scanRowMaps reads every row into a column-name keyed map, converting byte
// slices to strings for stable JSON output.
func scanRowMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var sample []map[string]any

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))

		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
				continue
			}

			row[column] = values[i]
		}

		sample = append(sample, row)
	}

	return sample, rows.Err()
}
