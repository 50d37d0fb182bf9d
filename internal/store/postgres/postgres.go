// Package postgres is the production store.Store[T] implementation: one
// JSONB-backed table per container, keyed by (partition_key, id), with an
// integer version column standing in for Cosmos DB's `_etag`, in place of
// a hand-written repository per entity type.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"newsreel/internal/observability/metrics"
	"newsreel/internal/resilience/circuitbreaker"
	"newsreel/internal/store"
)

// Store is a JSONB-table-backed store.Store[T]. One Store instance owns
// one table (container); build one per domain type (StoryCluster,
// FeedPollState, ...) sharing the same *sql.DB / circuit breaker.
type Store[T any] struct {
	db        *circuitbreaker.DBCircuitBreaker
	table     string
	operation string // metrics label, e.g. "clusters"
}

// New wraps db with circuit-breaker protection (internal/resilience/
// circuitbreaker.DBConfig — 5 consecutive failures trips the breaker) and
// returns a Store bound to table. Call EnsureSchema once at startup.
func New[T any](db *sql.DB, table string) *Store[T] {
	return &Store[T]{
		db:        circuitbreaker.NewDBCircuitBreaker(db),
		table:     table,
		operation: table,
	}
}

// EnsureSchema creates the container's table if it does not already exist,
// the same idempotent pattern internal/infra/db.MigrateUp uses — safe to
// call on every process start.
func (s *Store[T]) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    partition_key TEXT NOT NULL,
    id            TEXT NOT NULL,
    version       BIGINT NOT NULL DEFAULT 1,
    data          JSONB NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (partition_key, id)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres.Store[%s].EnsureSchema: %w", s.table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_partition ON %s (partition_key)`, s.table, s.table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("postgres.Store[%s].EnsureSchema: index: %w", s.table, err)
	}
	return nil
}

func (s *Store[T]) timed(operation string, start time.Time) {
	metrics.RecordOperationDuration(s.operation+"."+operation, time.Since(start))
}

func (s *Store[T]) Get(ctx context.Context, partitionKey, id string) (store.Item[T], error) {
	start := time.Now()
	defer s.timed("get", start)

	query := fmt.Sprintf(`SELECT version, data, updated_at FROM %s WHERE partition_key = $1 AND id = $2`, s.table)
	row := s.db.QueryRowContext(ctx, query, partitionKey, id)

	var version int64
	var raw []byte
	var updatedAt time.Time
	if err := row.Scan(&version, &raw, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Item[T]{}, store.ErrNotFound
		}
		return store.Item[T]{}, fmt.Errorf("postgres.Store[%s].Get: %w", s.table, err)
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return store.Item[T]{}, fmt.Errorf("postgres.Store[%s].Get: unmarshal: %w", s.table, err)
	}
	return store.Item[T]{PartitionKey: partitionKey, ID: id, Version: strconv.FormatInt(version, 10), Value: value, UpdatedAt: updatedAt}, nil
}

func (s *Store[T]) currentVersion(ctx context.Context, partitionKey, id string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT version FROM %s WHERE partition_key = $1 AND id = $2`, s.table)
	var version int64
	err := s.db.QueryRowContext(ctx, query, partitionKey, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strconv.FormatInt(version, 10), true, nil
}

func (s *Store[T]) Upsert(ctx context.Context, partitionKey, id string, value T, expectedVersion string) (store.Item[T], error) {
	start := time.Now()
	defer s.timed("upsert", start)

	data, err := json.Marshal(value)
	if err != nil {
		return store.Item[T]{}, fmt.Errorf("postgres.Store[%s].Upsert: marshal: %w", s.table, err)
	}

	var version int64
	var updatedAt time.Time

	if expectedVersion == "" {
		insert := fmt.Sprintf(`
INSERT INTO %s (partition_key, id, version, data, updated_at)
VALUES ($1, $2, 1, $3, now())
ON CONFLICT (partition_key, id) DO NOTHING
RETURNING version, updated_at`, s.table)
		err = s.db.QueryRowContext(ctx, insert, partitionKey, id, data).Scan(&version, &updatedAt)
	} else {
		expected, parseErr := strconv.ParseInt(expectedVersion, 10, 64)
		if parseErr != nil {
			return store.Item[T]{}, fmt.Errorf("postgres.Store[%s].Upsert: invalid expectedVersion %q: %w", s.table, expectedVersion, parseErr)
		}
		update := fmt.Sprintf(`
UPDATE %s SET version = version + 1, data = $1, updated_at = now()
WHERE partition_key = $2 AND id = $3 AND version = $4
RETURNING version, updated_at`, s.table)
		err = s.db.QueryRowContext(ctx, update, data, partitionKey, id, expected).Scan(&version, &updatedAt)
	}

	if errors.Is(err, sql.ErrNoRows) {
		actual, exists, verErr := s.currentVersion(ctx, partitionKey, id)
		if verErr != nil {
			return store.Item[T]{}, fmt.Errorf("postgres.Store[%s].Upsert: %w", s.table, verErr)
		}
		if !exists {
			actual = "<absent>"
		}
		return store.Item[T]{}, &store.ConflictError{PartitionKey: partitionKey, ID: id, Expected: expectedVersion, Actual: actual}
	}
	if err != nil {
		return store.Item[T]{}, fmt.Errorf("postgres.Store[%s].Upsert: %w", s.table, err)
	}

	notify(ctx, s.db, s.table, store.ChangeEvent{PartitionKey: partitionKey, ID: id, Version: strconv.FormatInt(version, 10), Op: store.ChangeUpsert, UpdatedAt: updatedAt})
	return store.Item[T]{PartitionKey: partitionKey, ID: id, Version: strconv.FormatInt(version, 10), Value: value, UpdatedAt: updatedAt}, nil
}

func (s *Store[T]) Delete(ctx context.Context, partitionKey, id, expectedVersion string) error {
	start := time.Now()
	defer s.timed("delete", start)

	var res sql.Result
	var err error
	if expectedVersion == "" {
		query := fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1 AND id = $2`, s.table)
		res, err = s.db.ExecContext(ctx, query, partitionKey, id)
	} else {
		expected, parseErr := strconv.ParseInt(expectedVersion, 10, 64)
		if parseErr != nil {
			return fmt.Errorf("postgres.Store[%s].Delete: invalid expectedVersion %q: %w", s.table, expectedVersion, parseErr)
		}
		query := fmt.Sprintf(`DELETE FROM %s WHERE partition_key = $1 AND id = $2 AND version = $3`, s.table)
		res, err = s.db.ExecContext(ctx, query, partitionKey, id, expected)
	}
	if err != nil {
		return fmt.Errorf("postgres.Store[%s].Delete: %w", s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres.Store[%s].Delete: %w", s.table, err)
	}
	if n == 0 {
		actual, exists, verErr := s.currentVersion(ctx, partitionKey, id)
		if verErr == nil && !exists {
			return store.ErrNotFound
		}
		return &store.ConflictError{PartitionKey: partitionKey, ID: id, Expected: expectedVersion, Actual: actual}
	}
	notify(ctx, s.db, s.table, store.ChangeEvent{PartitionKey: partitionKey, ID: id, Version: expectedVersion, Op: store.ChangeDelete, UpdatedAt: time.Now()})
	return nil
}

// opSQL maps a store.Op to its SQL operator over a text-cast JSONB field.
// Timestamps serialize to RFC3339, which — like all ISO-8601 UTC strings —
// sorts correctly under plain text comparison, so no numeric/time cast is
// needed for the filters and ordering the pipeline actually issues.
func opSQL(op store.Op) (string, error) {
	switch op {
	case store.OpEq, "":
		return "=", nil
	case store.OpGte:
		return ">=", nil
	case store.OpLte:
		return "<=", nil
	default:
		return "", fmt.Errorf("postgres: unsupported op %q", op)
	}
}

// filterArg renders a Filter.Value the same way encoding/json would render
// it inside the stored document, so the text comparison against
// data->>attribute lines up. time.Time needs this explicitly: json uses
// RFC3339Nano, but fmt's default verb uses Go's debug format instead.
func filterArg(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}

func (s *Store[T]) Find(ctx context.Context, q store.Query) ([]store.Item[T], error) {
	start := time.Now()
	defer s.timed("find", start)

	var where []string
	var args []any
	paramIndex := 1

	if q.PartitionKey != "" {
		where = append(where, fmt.Sprintf("partition_key = $%d", paramIndex))
		args = append(args, q.PartitionKey)
		paramIndex++
	}
	for _, f := range q.Filters {
		sqlOp, err := opSQL(f.Op)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("data->>'%s' %s $%d", f.Attribute, sqlOp, paramIndex))
		args = append(args, filterArg(f.Value))
		paramIndex++
	}

	query := fmt.Sprintf(`SELECT version, data, updated_at FROM %s`, s.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY data->>'%s' %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store[%s].Find: %w", s.table, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]store.Item[T], 0, 32)
	for rows.Next() {
		var version int64
		var raw []byte
		var updatedAt time.Time
		if err := rows.Scan(&version, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("postgres.Store[%s].Find: scan: %w", s.table, err)
		}
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("postgres.Store[%s].Find: unmarshal: %w", s.table, err)
		}
		items = append(items, store.Item[T]{Version: strconv.FormatInt(version, 10), Value: value, UpdatedAt: updatedAt})
	}
	return items, rows.Err()
}
