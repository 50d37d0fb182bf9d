package db

import "database/sql"

// containerTables lists every document-store container (internal/store)
// that the pipeline writes to. Each gets the same JSONB-document shape
// (see internal/store/postgres.Store.EnsureSchema, which creates the exact
// same DDL per-table at runtime) — this migration exists so a fresh
// database can be provisioned in one pass ahead of the worker/api binaries
// starting.
var containerTables = []string{
	"story_clusters",
	"feed_poll_state",
	"change_stream_leases",
	"notification_records",
	"dedup_fingerprints",
	"pending_summary_batches",
}

// MigrateUp creates every container table used by internal/store if it
// does not already exist. Safe to run repeatedly.
func MigrateUp(db *sql.DB) error {
	for _, table := range containerTables {
		if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS ` + table + ` (
    partition_key TEXT NOT NULL,
    id            TEXT NOT NULL,
    version       BIGINT NOT NULL DEFAULT 1,
    data          JSONB NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (partition_key, id)
)`); err != nil {
			return err
		}
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_` + table + `_partition ON ` + table + ` (partition_key)`); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown drops every container table. Use with caution: this deletes
// all pipeline state.
func MigrateDown(db *sql.DB) error {
	for _, table := range containerTables {
		if _, err := db.Exec(`DROP TABLE IF EXISTS ` + table + ` CASCADE`); err != nil {
			return err
		}
	}
	return nil
}
