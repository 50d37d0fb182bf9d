package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"newsreel/internal/store"
)

// notifyPayload is the JSON body delivered over Postgres NOTIFY — small and
// identity-only, so a subscriber fetches the current value with Get rather
// than trusting a possibly-stale broadcast body.
type notifyPayload struct {
	PartitionKey string         `json:"partition_key"`
	ID           string         `json:"id"`
	Version      string         `json:"version"`
	Op           store.ChangeOp `json:"op"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func channelName(table string) string { return "store_changes_" + table }

// notify publishes a change event on the container's Postgres NOTIFY
// channel. Uses the pooled *sql.DB (any connection can issue NOTIFY; unlike
// LISTEN it is not session-scoped), wrapped by the same circuit breaker as
// every other write.
func notify(ctx context.Context, db circuitBreakerExecer, table string, ev store.ChangeEvent) {
	payload, err := json.Marshal(notifyPayload{PartitionKey: ev.PartitionKey, ID: ev.ID, Version: ev.Version, Op: ev.Op, UpdatedAt: ev.UpdatedAt})
	if err != nil {
		slog.Error("postgres store: failed to marshal notify payload", slog.String("table", table), slog.Any("error", err))
		return
	}
	if _, err := db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channelName(table), string(payload)); err != nil {
		slog.Error("postgres store: pg_notify failed", slog.String("table", table), slog.Any("error", err))
	}
}

// Subscriber listens for change events on one container's NOTIFY channel
// over a dedicated pgx connection (database/sql's pooled *sql.DB cannot
// hold a session-scoped LISTEN), and tracks per-consumer durable
// checkpoints in a ChangeStreamLease store so a restarted consumer resumes
// instead of replaying from the beginning.
type Subscriber struct {
	dsn   string
	table string
}

// NewSubscriber builds a Subscriber for one container's change channel. dsn
// is the same connection string passed to postgres.Open — a fresh pgx
// connection is opened per Subscribe call since LISTEN is connection-scoped.
func NewSubscriber(dsn, table string) *Subscriber {
	return &Subscriber{dsn: dsn, table: table}
}

// Subscribe establishes LISTEN first, then drains a catch-up query for
// rows written since afterCheckpoint before handing control to live
// notifications — so a write that lands while the consumer is down
// (crash, deploy, restart) is still delivered once the consumer resumes,
// matching the at-least-once contract store.Subscriber documents. An
// empty afterCheckpoint (first run for this consumer) skips catch-up
// entirely; there is nothing to resume from.
func (l *Subscriber) Subscribe(ctx context.Context, consumer, partitionKey, afterCheckpoint string) (<-chan store.ChangeEvent, error) {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.Subscriber(%s): connect: %w", l.table, err)
	}
	channel := channelName(l.table)
	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", pgx.Identifier{channel}.Sanitize())); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres.Subscriber(%s): listen: %w", l.table, err)
	}

	out := make(chan store.ChangeEvent, 64)
	go func() {
		defer close(out)
		defer func() { _ = conn.Close(context.Background()) }()

		if err := l.catchUp(ctx, conn, partitionKey, afterCheckpoint, out); err != nil {
			if ctx.Err() == nil {
				slog.Error("postgres store: catch-up query failed", slog.String("consumer", consumer), slog.String("table", l.table), slog.Any("error", err))
			}
			return
		}

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("postgres store: notification wait failed", slog.String("consumer", consumer), slog.String("table", l.table), slog.Any("error", err))
				return
			}
			var payload notifyPayload
			if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
				slog.Error("postgres store: malformed notify payload", slog.String("table", l.table), slog.Any("error", err))
				continue
			}
			if partitionKey != "" && payload.PartitionKey != partitionKey {
				continue
			}
			select {
			case out <- store.ChangeEvent{PartitionKey: payload.PartitionKey, ID: payload.ID, Version: payload.Version, Op: payload.Op, UpdatedAt: payload.UpdatedAt}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// catchUp replays every row written after afterCheckpoint as a synthetic
// upsert event, oldest first, draining them into out before Subscribe
// switches to live NOTIFY delivery. Rows deleted since the checkpoint are
// not replayed — they no longer exist to scan, and a consumer's handleEvent
// already treats ErrNotFound on a stale id as a no-op.
func (l *Subscriber) catchUp(ctx context.Context, conn *pgx.Conn, partitionKey, afterCheckpoint string, out chan<- store.ChangeEvent) error {
	if afterCheckpoint == "" {
		return nil
	}
	since, err := time.Parse(time.RFC3339Nano, afterCheckpoint)
	if err != nil {
		return fmt.Errorf("postgres.Subscriber(%s): invalid checkpoint %q: %w", l.table, afterCheckpoint, err)
	}

	query := fmt.Sprintf(`SELECT partition_key, id, version, updated_at FROM %s WHERE updated_at > $1`, l.table)
	args := []any{since}
	if partitionKey != "" {
		query += " AND partition_key = $2"
		args = append(args, partitionKey)
	}
	query += " ORDER BY updated_at ASC"

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres.Subscriber(%s): catch-up query: %w", l.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var pk, id string
		var version int64
		var updatedAt time.Time
		if err := rows.Scan(&pk, &id, &version, &updatedAt); err != nil {
			return fmt.Errorf("postgres.Subscriber(%s): catch-up scan: %w", l.table, err)
		}
		ev := store.ChangeEvent{PartitionKey: pk, ID: id, Version: strconv.FormatInt(version, 10), Op: store.ChangeUpsert, UpdatedAt: updatedAt}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return rows.Err()
}

// circuitBreakerExecer is the minimal surface notify needs from
// circuitbreaker.DBCircuitBreaker, declared locally so this file doesn't
// import database/sql just for the type name.
type circuitBreakerExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
