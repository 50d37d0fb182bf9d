package summarize

import (
	"context"
	"errors"
	"time"

	"newsreel/internal/domain/entity"
	"newsreel/internal/store"
)

// leaseConsumer is the ChangeStreamLease partition key summarize jobs use
// for their advisory per-cluster lease, distinct from the consumer name the
// clustering engine uses for its own change-stream checkpoint (§4.5:
// "at-most-one in-flight summary job per cluster via an advisory lease").
const leaseConsumer = "summarizer-lease"

// acquireLease attempts to take the advisory lease for clusterID. It
// returns false, nil (not an error) whenever another worker currently
// holds an unexpired lease, or loses the optimistic-concurrency race to
// acquire it — both are the ordinary "someone else has it" outcome, not a
// failure.
func acquireLease(ctx context.Context, leases store.Store[entity.ChangeStreamLease], clusterID string, now time.Time, ttl time.Duration) (bool, error) {
	expected := ""
	lease := entity.ChangeStreamLease{ConsumerName: leaseConsumer, Partition: clusterID}

	existing, err := leases.Get(ctx, leaseConsumer, clusterID)
	if err == nil {
		if existing.Value.LeasedUntil != nil && existing.Value.LeasedUntil.After(now) {
			return false, nil
		}
		expected = existing.Version
		lease = existing.Value
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	until := now.Add(ttl)
	lease.LeasedUntil = &until
	lease.UpdatedAt = now
	if _, err := leases.Upsert(ctx, leaseConsumer, clusterID, lease, expected); err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// releaseLease clears the lease immediately after a job finishes, so the
// next eligible trigger (real-time or batch) doesn't wait out the TTL.
// Best-effort: a failure here is harmless, since the lease expires on its
// own shortly after.
func releaseLease(ctx context.Context, leases store.Store[entity.ChangeStreamLease], clusterID string) {
	existing, err := leases.Get(ctx, leaseConsumer, clusterID)
	if err != nil {
		return
	}
	existing.Value.LeasedUntil = nil
	_, _ = leases.Upsert(ctx, leaseConsumer, clusterID, existing.Value, existing.Version)
}
