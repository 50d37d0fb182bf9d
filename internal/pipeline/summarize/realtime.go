package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"newsreel/internal/domain/entity"
	"newsreel/internal/observability/metrics"
	"newsreel/internal/store"
)

const realtimeConsumer = "summarizer-realtime"

// RealtimeDispatcher subscribes to the story-cluster change stream and
// generates a fresh summary inline whenever a cluster becomes eligible
// (§4.5 real-time path): verification_level >= 1 and at least one
// linked source article carries body text, subject to the lease and
// regeneration-skip rules shared with the batch path.
type RealtimeDispatcher struct {
	Clusters  store.Store[entity.StoryCluster]
	Articles  store.Store[entity.RawArticle]
	Leases    store.Store[entity.ChangeStreamLease]
	Subscriber store.Subscriber
	Provider  Provider

	MinSourceDelta int
	RegenHorizon   time.Duration
	LeaseTTL       time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Run subscribes to one change-stream partition per category and blocks
// until ctx is cancelled or a partition's subscriber errors, mirroring the
// clustering engine's per-partition fan-out (§5).
func (d *RealtimeDispatcher) Run(ctx context.Context, partitions []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range partitions {
		partition := p
		g.Go(func() error {
			return d.runPartition(ctx, partition)
		})
	}
	return g.Wait()
}

func (d *RealtimeDispatcher) runPartition(ctx context.Context, partition string) error {
	lease, err := d.Leases.Get(ctx, realtimeConsumer, partition)
	checkpoint := ""
	if err == nil {
		checkpoint = lease.Value.Checkpoint
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("summarize: load checkpoint for partition %s: %w", partition, err)
	}

	events, err := d.Subscriber.Subscribe(ctx, realtimeConsumer, partition, checkpoint)
	if err != nil {
		return fmt.Errorf("summarize: subscribe partition %s: %w", partition, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.handleEvent(ctx, ev); err != nil {
				d.Logger.Error("summarize: event handling failed", slog.String("partition", partition), slog.Any("error", err))
			}
			if err := d.checkpoint(ctx, partition, ev.CheckpointToken()); err != nil {
				d.Logger.Error("summarize: checkpoint advance failed", slog.String("partition", partition), slog.Any("error", err))
			}
		}
	}
}

func (d *RealtimeDispatcher) checkpoint(ctx context.Context, partition, token string) error {
	for attempt := 0; attempt < 5; attempt++ {
		existing, err := d.Leases.Get(ctx, realtimeConsumer, partition)
		expected := ""
		lease := entity.ChangeStreamLease{ConsumerName: realtimeConsumer, Partition: partition}
		if err == nil {
			expected = existing.Version
			lease = existing.Value
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		lease.Checkpoint = token
		lease.UpdatedAt = d.Now()
		_, err = d.Leases.Upsert(ctx, realtimeConsumer, partition, lease, expected)
		if err == nil {
			return nil
		}
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			metrics.ConflictRetriesTotal.WithLabelValues("change_stream_leases").Inc()
			continue
		}
		return err
	}
	return fmt.Errorf("summarize: checkpoint advance exhausted retries for partition %s", partition)
}

func (d *RealtimeDispatcher) handleEvent(ctx context.Context, ev store.ChangeEvent) error {
	if ev.Op != store.ChangeUpsert {
		return nil
	}
	item, err := d.Clusters.Get(ctx, ev.PartitionKey, ev.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return d.maybeSummarize(ctx, item)
}

// maybeSummarize checks eligibility and the regeneration-skip rule, then
// runs a full summarize-and-persist cycle for one cluster.
func (d *RealtimeDispatcher) maybeSummarize(ctx context.Context, item store.Item[entity.StoryCluster]) error {
	cluster := item.Value
	if cluster.VerificationLevel < 1 {
		return nil
	}
	if !needsRegeneration(cluster, d.MinSourceDelta, d.RegenHorizon, d.Now()) {
		return nil
	}

	sources, err := loadSources(ctx, d.Articles, cluster)
	if err != nil {
		return err
	}
	if !anyHasBody(sources) {
		return nil
	}

	acquired, err := acquireLease(ctx, d.Leases, cluster.ID, d.Now(), d.LeaseTTL)
	if err != nil {
		return fmt.Errorf("summarize: acquire lease for cluster %s: %w", cluster.ID, err)
	}
	if !acquired {
		return nil
	}
	defer releaseLease(ctx, d.Leases, cluster.ID)

	return generateAndApply(ctx, d.Clusters, d.Provider, cluster.Category, cluster.ID, sources, "realtime", d.Now(), d.Logger)
}

// needsRegeneration implements §4.5's "skip regeneration unless
// verification_level increased by >=2 or 12h elapsed since last
// generation". A never-summarized cluster always qualifies.
func needsRegeneration(cluster entity.StoryCluster, minSourceDelta int, regenHorizon time.Duration, now time.Time) bool {
	if cluster.Summary.Version == 0 {
		return true
	}
	sourceDelta := cluster.VerificationLevel - cluster.Summary.SourceCountAtGeneration
	if sourceDelta >= minSourceDelta {
		return true
	}
	return now.Sub(cluster.Summary.GeneratedAt) >= regenHorizon
}

// loadSources fetches every RawArticle currently linked to cluster. A
// cross-partition Find is required rather than a point Get: RawArticle is
// partitioned by PublishedDate, which the cluster doesn't carry, only the
// article id (§3 deliberately keeps SourceLinks lightweight).
func loadSources(ctx context.Context, articles store.Store[entity.RawArticle], cluster entity.StoryCluster) ([]entity.RawArticle, error) {
	out := make([]entity.RawArticle, 0, len(cluster.SourceArticles))
	for _, articleID := range cluster.SourceArticles {
		found, err := articles.Find(ctx, store.Query{
			Filters: []store.Filter{{Attribute: "ID", Op: store.OpEq, Value: articleID}},
			Limit:   1,
		})
		if err != nil {
			return nil, fmt.Errorf("summarize: load source article %s: %w", articleID, err)
		}
		if len(found) == 0 {
			continue
		}
		out = append(out, found[0].Value)
	}
	return out, nil
}

func anyHasBody(articles []entity.RawArticle) bool {
	for i := range articles {
		if articles[i].HasBody() {
			return true
		}
	}
	return false
}
