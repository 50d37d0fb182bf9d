// Package memstore is an in-memory store.Store implementation used by the
// pipeline's test suite in place of a real Postgres instance, backed by a
// plain Go map rather than a second SQL engine, since the document-store
// contract (store.Store) has no SQL-specific surface worth emulating twice.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"newsreel/internal/store"
)

type record[T any] struct {
	partitionKey string
	id           string
	version      int64
	value        T
	updatedAt    time.Time
}

// Store is a goroutine-safe, in-memory store.Store[T]. The zero value is
// not usable; construct with New.
type Store[T any] struct {
	mu      sync.RWMutex
	records map[string]*record[T] // key: partitionKey + "/" + id
	subs    []*subscription

	clock func() time.Time
}

// New constructs an empty in-memory store. clock defaults to time.Now and
// is overridable in tests that need deterministic timestamps.
func New[T any](clock func() time.Time) *Store[T] {
	if clock == nil {
		clock = time.Now
	}
	return &Store[T]{records: make(map[string]*record[T]), clock: clock}
}

func key(partitionKey, id string) string { return partitionKey + "/" + id }

func (s *Store[T]) Get(_ context.Context, partitionKey, id string) (store.Item[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key(partitionKey, id)]
	if !ok {
		return store.Item[T]{}, store.ErrNotFound
	}
	return itemFromRecord(rec), nil
}

func (s *Store[T]) Upsert(_ context.Context, partitionKey, id string, value T, expectedVersion string) (store.Item[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(partitionKey, id)
	existing, exists := s.records[k]

	var actual string
	if exists {
		actual = strconv.FormatInt(existing.version, 10)
	}
	if expectedVersion != "" && expectedVersion != actual {
		return store.Item[T]{}, &store.ConflictError{
			PartitionKey: partitionKey, ID: id,
			Expected: expectedVersion, Actual: actual,
		}
	}
	if expectedVersion == "" && exists {
		return store.Item[T]{}, &store.ConflictError{
			PartitionKey: partitionKey, ID: id,
			Expected: "<new>", Actual: actual,
		}
	}

	nextVersion := int64(1)
	if exists {
		nextVersion = existing.version + 1
	}
	rec := &record[T]{
		partitionKey: partitionKey,
		id:           id,
		version:      nextVersion,
		value:        value,
		updatedAt:    s.clock(),
	}
	s.records[k] = rec

	s.publish(store.ChangeEvent{
		PartitionKey: partitionKey,
		ID:           id,
		Version:      strconv.FormatInt(nextVersion, 10),
		Op:           store.ChangeUpsert,
		UpdatedAt:    rec.updatedAt,
	})
	return itemFromRecord(rec), nil
}

func (s *Store[T]) Delete(_ context.Context, partitionKey, id, expectedVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(partitionKey, id)
	existing, exists := s.records[k]
	if !exists {
		return store.ErrNotFound
	}
	actual := strconv.FormatInt(existing.version, 10)
	if expectedVersion != "" && expectedVersion != actual {
		return &store.ConflictError{PartitionKey: partitionKey, ID: id, Expected: expectedVersion, Actual: actual}
	}
	delete(s.records, k)
	s.publish(store.ChangeEvent{PartitionKey: partitionKey, ID: id, Version: actual, Op: store.ChangeDelete, UpdatedAt: s.clock()})
	return nil
}

func (s *Store[T]) Find(_ context.Context, q store.Query) ([]store.Item[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]store.Item[T], 0, len(s.records))
	for _, rec := range s.records {
		if q.PartitionKey != "" && rec.partitionKey != q.PartitionKey {
			continue
		}
		match, err := matchesFilters(rec.value, q.Filters)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		items = append(items, itemFromRecord(rec))
	}

	if q.OrderBy != "" {
		sort.Slice(items, func(i, j int) bool {
			vi, _ := fieldValue(items[i].Value, q.OrderBy)
			vj, _ := fieldValue(items[j].Value, q.OrderBy)
			less := lessValue(vi, vj)
			if q.Descending {
				return !less && !reflect.DeepEqual(vi, vj)
			}
			return less
		})
	}
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items, nil
}

func itemFromRecord[T any](rec *record[T]) store.Item[T] {
	return store.Item[T]{
		PartitionKey: rec.partitionKey,
		ID:           rec.id,
		Version:      strconv.FormatInt(rec.version, 10),
		Value:        rec.value,
		UpdatedAt:    rec.updatedAt,
	}
}

func matchesFilters(value any, filters []store.Filter) (bool, error) {
	for _, f := range filters {
		v, err := fieldValue(value, f.Attribute)
		if err != nil {
			return false, err
		}
		ok, err := evalFilter(v, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func fieldValue(value any, attribute string) (any, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("memstore: %T is not a struct, cannot filter on %q", value, attribute)
	}
	field := rv.FieldByName(attribute)
	if !field.IsValid() {
		return nil, fmt.Errorf("memstore: no field %q on %T", attribute, value)
	}
	return field.Interface(), nil
}

func evalFilter(v any, f store.Filter) (bool, error) {
	switch f.Op {
	case store.OpEq, "":
		return reflect.DeepEqual(v, f.Value), nil
	case store.OpGte:
		return !lessValue(v, f.Value), nil
	case store.OpLte:
		return !lessValue(f.Value, v), nil
	default:
		return false, fmt.Errorf("memstore: unsupported op %q", f.Op)
	}
}

// lessValue supports the attribute types actually used by the pipeline's
// queries: time.Time, numeric kinds, and strings.
func lessValue(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Before(bt)
		}
	}
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	switch av.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return av.Int() < bv.Int()
	case reflect.Float32, reflect.Float64:
		return av.Float() < bv.Float()
	case reflect.String:
		return av.String() < bv.String()
	default:
		return false
	}
}

type subscription struct {
	partitionKey string
	ch           chan store.ChangeEvent
}

func (s *Store[T]) publish(ev store.ChangeEvent) {
	for _, sub := range s.subs {
		if sub.partitionKey != "" && sub.partitionKey != ev.PartitionKey {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer: drop rather than block the writer. Tests that
			// need guaranteed delivery should read the channel promptly.
		}
	}
}

// Subscribe implements store.Subscriber. Writes made before this call but
// after afterCheckpoint are replayed (as synthetic upserts, current value
// only — the in-memory store keeps no delete tombstones) before the
// channel starts carrying live events, so a restarted consumer doesn't
// lose documents written while it was down.
func (s *Store[T]) Subscribe(ctx context.Context, _ /*consumer*/, partitionKey string, afterCheckpoint string) (<-chan store.ChangeEvent, error) {
	var since time.Time
	if afterCheckpoint != "" {
		t, err := time.Parse(time.RFC3339Nano, afterCheckpoint)
		if err != nil {
			return nil, fmt.Errorf("memstore: invalid checkpoint %q: %w", afterCheckpoint, err)
		}
		since = t
	}

	s.mu.Lock()
	var backlog []*record[T]
	if !since.IsZero() {
		for _, rec := range s.records {
			if partitionKey != "" && rec.partitionKey != partitionKey {
				continue
			}
			if rec.updatedAt.After(since) {
				backlog = append(backlog, rec)
			}
		}
		sort.Slice(backlog, func(i, j int) bool { return backlog[i].updatedAt.Before(backlog[j].updatedAt) })
	}

	ch := make(chan store.ChangeEvent, 64+len(backlog))
	for _, rec := range backlog {
		ch <- store.ChangeEvent{
			PartitionKey: rec.partitionKey,
			ID:           rec.id,
			Version:      strconv.FormatInt(rec.version, 10),
			Op:           store.ChangeUpsert,
			UpdatedAt:    rec.updatedAt,
		}
	}
	sub := &subscription{partitionKey: partitionKey, ch: ch}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}()
	return sub.ch, nil
}
