package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsreel/internal/domain/entity"
	"newsreel/internal/observability/metrics"
	"newsreel/internal/store"
)

// BatchDispatcher runs the periodic batch summarization path (§4.5):
// on each cycle it submits a job covering clusters the real-time path
// hasn't reached or whose summary has gone stale, then separately polls
// every job still in flight from a prior cycle. Submission and polling
// are split because OpenAI's batch completion window (up to 24h) can
// outlive many scheduling periods.
type BatchDispatcher struct {
	Clusters store.Store[entity.StoryCluster]
	Articles store.Store[entity.RawArticle]
	Leases   store.Store[entity.ChangeStreamLease]
	Pending  store.Store[entity.PendingSummaryBatch]
	Provider BatchProvider

	MinAge         time.Duration
	MinSourceDelta int
	RegenHorizon   time.Duration
	MaxBatchSize   int
	LeaseTTL       time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

const pendingBatchPartition = "summarizer-batch"

// RunOnce executes one batch-dispatcher cycle: poll jobs already in
// flight, then submit a fresh job for whatever is newly eligible. Intended
// to be driven by an external scheduler (cmd/worker's cron job), not a
// ticker owned by this type — keeping cron wiring in cmd/worker separate
// from plain synchronous use-case methods.
func (d *BatchDispatcher) RunOnce(ctx context.Context) error {
	if err := d.pollInFlight(ctx); err != nil {
		d.Logger.Error("summarize: batch poll cycle failed", slog.Any("error", err))
	}
	return d.submitEligible(ctx)
}

// submitEligible selects candidate clusters, leases each one, and submits
// them as a single batch job.
func (d *BatchDispatcher) submitEligible(ctx context.Context) error {
	candidates, err := d.selectCandidates(ctx)
	if err != nil {
		return fmt.Errorf("summarize: select batch candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	now := d.Now()
	leased := make([]entity.StoryCluster, 0, len(candidates))
	for _, c := range candidates {
		acquired, err := acquireLease(ctx, d.Leases, c.ID, now, d.LeaseTTL*batchLeaseMultiple)
		if err != nil {
			d.Logger.Warn("summarize: lease acquisition failed", slog.String("cluster_id", c.ID), slog.Any("error", err))
			continue
		}
		if !acquired {
			continue
		}
		leased = append(leased, c)
	}
	if len(leased) == 0 {
		return nil
	}

	reqs := make([]SummaryRequest, 0, len(leased))
	refs := make([]entity.ClusterRef, 0, len(leased))
	for _, c := range leased {
		sources, err := loadSources(ctx, d.Articles, c)
		if err != nil {
			releaseLease(ctx, d.Leases, c.ID)
			d.Logger.Warn("summarize: load sources failed, releasing lease", slog.String("cluster_id", c.ID), slog.Any("error", err))
			continue
		}
		reqs = append(reqs, buildSummaryRequestFromCluster(c.ID, sources))
		refs = append(refs, entity.ClusterRef{ClusterID: c.ID, Category: c.Category})
	}
	if len(reqs) == 0 {
		return nil
	}

	batchID, err := d.Provider.Submit(ctx, reqs)
	if err != nil {
		for _, ref := range refs {
			releaseLease(ctx, d.Leases, ref.ClusterID)
		}
		metrics.SummaryGenerationTotal.WithLabelValues("batch", "error").Inc()
		return fmt.Errorf("summarize: submit batch: %w", err)
	}

	pending := entity.PendingSummaryBatch{BatchID: batchID, Clusters: refs, SubmittedAt: now}
	if _, err := d.Pending.Upsert(ctx, pendingBatchPartition, batchID, pending, ""); err != nil {
		return fmt.Errorf("summarize: persist pending batch %s: %w", batchID, err)
	}
	d.Logger.Info("summarize: batch job submitted", slog.String("batch_id", batchID), slog.Int("cluster_count", len(refs)))
	return nil
}

// batchLeaseMultiple widens the advisory lease for batch-submitted
// clusters well past LeaseTTL, since a batch job can stay in flight for
// hours rather than the seconds a real-time summarize call takes.
const batchLeaseMultiple = 720 // LeaseTTL * 720 ~= 24h when LeaseTTL is the default 2m

// selectCandidates scans every cluster (cross-partition) and keeps those
// old enough and due for (re)generation. memstore/postgres both support
// only simple attribute filters, so the regeneration/staleness predicate —
// which reads nested Summary fields — is applied client-side.
func (d *BatchDispatcher) selectCandidates(ctx context.Context) ([]entity.StoryCluster, error) {
	now := d.Now()
	all, err := d.Clusters.Find(ctx, store.Query{})
	if err != nil {
		return nil, err
	}

	candidates := make([]entity.StoryCluster, 0, d.MaxBatchSize)
	for _, item := range all {
		c := item.Value
		if now.Sub(c.FirstSeen) < d.MinAge {
			continue
		}
		if !needsRegeneration(c, d.MinSourceDelta, d.RegenHorizon, now) {
			continue
		}
		candidates = append(candidates, c)
		if len(candidates) >= d.MaxBatchSize {
			break
		}
	}
	return candidates, nil
}

// pollInFlight checks every previously submitted job still tracked in
// Pending and applies results for whichever ones the provider now reports
// complete.
func (d *BatchDispatcher) pollInFlight(ctx context.Context) error {
	jobs, err := d.Pending.Find(ctx, store.Query{PartitionKey: pendingBatchPartition})
	if err != nil {
		return fmt.Errorf("list pending batches: %w", err)
	}

	for _, job := range jobs {
		if err := d.pollOne(ctx, job); err != nil {
			d.Logger.Error("summarize: batch job poll failed", slog.String("batch_id", job.Value.BatchID), slog.Any("error", err))
		}
	}
	return nil
}

func (d *BatchDispatcher) pollOne(ctx context.Context, job store.Item[entity.PendingSummaryBatch]) error {
	results, done, err := d.Provider.Poll(ctx, job.Value.BatchID)
	if err != nil {
		// A terminal failure (failed/expired/cancelled) still needs the job
		// cleared and leases released — the clusters fall back to the next
		// cycle's eligibility check rather than being stuck leased forever.
		d.releaseAndRemove(ctx, job)
		return err
	}
	if !done {
		return nil
	}

	now := d.Now()
	for _, ref := range job.Value.Clusters {
		result, ok := results[ref.ClusterID]
		if !ok {
			continue
		}
		if err := applySummary(ctx, d.Clusters, ref.Category, ref.ClusterID, result, now, d.Logger); err != nil {
			d.Logger.Error("summarize: apply batch result failed", slog.String("cluster_id", ref.ClusterID), slog.Any("error", err))
			continue
		}
		outcome := "ok"
		if result.ModelID == FallbackModelID {
			outcome = "refusal"
		}
		metrics.SummaryGenerationTotal.WithLabelValues("batch", outcome).Inc()
		metrics.SummaryCostUSDTotal.WithLabelValues("batch", result.ModelID).Add(result.CostUSD)
		metrics.SummaryTokensTotal.WithLabelValues("batch", "prompt").Add(float64(result.PromptTokens))
		metrics.SummaryTokensTotal.WithLabelValues("batch", "completion").Add(float64(result.CompletionTokens))
	}

	d.releaseAndRemove(ctx, job)
	return nil
}

func (d *BatchDispatcher) releaseAndRemove(ctx context.Context, job store.Item[entity.PendingSummaryBatch]) {
	for _, ref := range job.Value.Clusters {
		releaseLease(ctx, d.Leases, ref.ClusterID)
	}
	if err := d.Pending.Delete(ctx, pendingBatchPartition, job.Value.BatchID, job.Version); err != nil && !errors.Is(err, store.ErrNotFound) {
		d.Logger.Warn("summarize: pending batch delete failed", slog.String("batch_id", job.Value.BatchID), slog.Any("error", err))
	}
}
