// Package store defines the document-store contract shared by every
// pipeline component and both binaries: a single typed contract backed by
// either a real Postgres instance (internal/store/postgres) or an
// in-memory fake (internal/store/memstore) used throughout the test suite,
// in place of a separate hand-written repository per entity type.
//
// A Store[T] holds documents of one Go type T in one logical container
// (table), partitioned by an application-chosen partition key (category,
// for story clusters; feed id, for poll state) the same way Cosmos DB
// partitions a container. Every document carries an opaque version token
// used for optimistic concurrency: Upsert fails with a *ConflictError if
// the caller's expected version doesn't match the one currently stored.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no document exists at the given
// partition key and id.
var ErrNotFound = errors.New("store: document not found")

// ConflictError is returned by Upsert when expectedVersion does not match
// the version currently stored — the optimistic-concurrency contract
// §5/§6 requires ("conflicts retried up to 5 times then escalated").
type ConflictError struct {
	Container    string
	PartitionKey string
	ID           string
	Expected     string
	Actual       string
}

func (e *ConflictError) Error() string {
	return "store: version conflict in " + e.Container + "/" + e.PartitionKey + "/" + e.ID +
		": expected " + e.Expected + ", have " + e.Actual
}

// Item is a versioned document as returned by a Store.
type Item[T any] struct {
	PartitionKey string
	ID           string
	Version      string
	Value        T
	UpdatedAt    time.Time
}

// Op describes the comparison applied to a Filter.
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLte Op = "<="
)

// Filter is a single equality or range predicate over a top-level
// attribute of T, evaluated server-side (a JSONB ->> comparison in the
// Postgres implementation, a reflective field compare in memstore).
type Filter struct {
	Attribute string
	Op        Op
	Value     any
}

// Query scopes a Find call. PartitionKey is optional; an empty value
// performs a cross-partition scan, which the Postgres implementation
// executes without a partition-key predicate (acceptable at this scale —
// names per-category partitions in the tens, not the thousands).
type Query struct {
	PartitionKey string
	Filters      []Filter
	OrderBy      string
	Descending   bool
	Limit        int
}

// Store is the document-store contract. Implementations: postgres.Store
// (production) and memstore.Store (tests).
type Store[T any] interface {
	// Get performs a point read. Returns ErrNotFound if absent.
	Get(ctx context.Context, partitionKey, id string) (Item[T], error)

	// Upsert creates or replaces a document. expectedVersion is the
	// version the caller last observed; pass "" to create unconditionally
	// (fails with *ConflictError if the document already exists). A
	// mismatch returns *ConflictError without writing.
	Upsert(ctx context.Context, partitionKey, id string, value T, expectedVersion string) (Item[T], error)

	// Find runs a secondary-attribute query, bounded by q.Limit (a
	// Store implementation may cap it further).
	Find(ctx context.Context, q Query) ([]Item[T], error)

	// Delete removes a document. expectedVersion must match, or "" to
	// delete unconditionally.
	Delete(ctx context.Context, partitionKey, id, expectedVersion string) error
}
