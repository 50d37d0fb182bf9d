package normalize

import (
	"context"
	"fmt"
	"time"

	"newsreel/internal/domain/entity"
	"newsreel/internal/observability/metrics"
	"newsreel/internal/store"
)

// maxCandidateWindow bounds how many recent fingerprints the barrier
// compares a new article against in one check.
const maxCandidateWindow = 500

// Barrier is the rolling de-duplication barrier (§4.1): before
// insertion, an article's exact_hash and simhash are checked against a
// rolling 7-day window of previously admitted fingerprints across every
// source domain, not just the incoming article's own — a wire story
// republished verbatim by two different affiliate domains is still the
// same duplicate.
type Barrier struct {
	store store.Store[entity.DedupFingerprint]
	now   func() time.Time
}

// NewBarrier builds a Barrier over the given fingerprint store. now
// defaults to time.Now and is overridable in tests.
func NewBarrier(s store.Store[entity.DedupFingerprint], now func() time.Time) *Barrier {
	if now == nil {
		now = time.Now
	}
	return &Barrier{store: s, now: now}
}

// Outcome reports why an article was admitted or dropped.
type Outcome string

const (
	Admitted          Outcome = "admitted"
	DroppedExactHash  Outcome = "exact_hash"
	DroppedSimHash    Outcome = "simhash"
)

// Check evaluates the barrier for a candidate article and, if admitted,
// records its fingerprint so subsequent articles can be checked against
// it. exactHash/simHash must already be computed (ExactHash/SimHash).
func (b *Barrier) Check(ctx context.Context, sourceDomain, articleID, exactHash string, simHash uint64) (Outcome, error) {
	cutoff := b.now().Add(-entity.RollingWindow)

	// Cross-domain scan: dedup must catch syndicated copies of the same
	// story republished under a different affiliate's domain, which a
	// query scoped to sourceDomain's own partition would never see.
	recent, err := b.store.Find(ctx, store.Query{
		Filters: []store.Filter{
			{Attribute: "FirstSeen", Op: store.OpGte, Value: cutoff},
		},
		Limit: maxCandidateWindow,
	})
	if err != nil {
		return "", fmt.Errorf("normalize.Barrier.Check: %w", err)
	}

	for _, item := range recent {
		if item.Value.ExactHash == exactHash {
			metrics.ArticlesDedupedTotal.WithLabelValues("exact_hash").Inc()
			return DroppedExactHash, nil
		}
	}
	for _, item := range recent {
		if HammingDistance64(item.Value.SimHash, simHash) <= 3 {
			metrics.ArticlesDedupedTotal.WithLabelValues("simhash").Inc()
			return DroppedSimHash, nil
		}
	}

	record := entity.DedupFingerprint{
		ExactHash:    exactHash,
		SimHash:      simHash,
		SourceDomain: sourceDomain,
		ArticleID:    articleID,
		FirstSeen:    b.now(),
	}
	if _, err := b.store.Upsert(ctx, sourceDomain, articleID, record, ""); err != nil {
		return "", fmt.Errorf("normalize.Barrier.Check: record: %w", err)
	}
	return Admitted, nil
}
