package store

import (
	"context"
	"time"
)

// ChangeOp identifies what kind of write produced a ChangeEvent.
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent is a single notification emitted after a document write. It
// carries identity, not the document body — a subscriber that needs the
// current value performs a Get, the same "notify-then-fetch" pattern
// §6 asks the Postgres implementation to emulate for Cosmos DB's
// native change feed.
type ChangeEvent struct {
	PartitionKey string
	ID           string
	Version      string
	Op           ChangeOp
	UpdatedAt    time.Time
}

// CheckpointToken renders the event's write time as the opaque checkpoint
// string a consumer persists and later passes back as afterCheckpoint —
// RFC3339Nano so a Subscribe implementation backed by updated_at can parse
// it back out for a catch-up query.
func (e ChangeEvent) CheckpointToken() string {
	return e.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// Subscriber exposes the change-subscription primitive for one container.
// A consumer resumes from its last durable checkpoint (a
// entity.ChangeStreamLease row) rather than replaying from the start —
// Subscribe takes the checkpoint to resume from and is responsible for not
// losing events delivered between a subscriber's restarts (at-least-once).
type Subscriber interface {
	// Subscribe starts delivering change events for partitionKey (or every
	// partition, if empty) to the returned channel, beginning after
	// afterCheckpoint. The channel is closed when ctx is canceled or the
	// underlying connection is lost; callers should treat closure as
	// "reconnect and resume from the last checkpoint observed", not EOF.
	Subscribe(ctx context.Context, consumer, partitionKey string, afterCheckpoint string) (<-chan ChangeEvent, error)
}
