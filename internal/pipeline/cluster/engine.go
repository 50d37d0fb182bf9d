// Package cluster implements the online clustering engine: candidate
// retrieval, the matching cascade, and the per-partition change-stream
// subscriber that drives it.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"newsreel/internal/domain/entity"
	"newsreel/internal/observability/metrics"
	"newsreel/internal/pipeline/status"
	"newsreel/internal/store"
)

// IDGenerator mints a new cluster id. Kept as a narrow function type rather
// than pulling in a UUID dependency here — callers own the scheme (§3
// doesn't constrain story_id format beyond uniqueness).
type IDGenerator func() string

// Notifier dispatches a breaking-news broadcast. A narrow, consumer-owned
// interface so this package doesn't need to import internal/notify's
// concrete clients.
type Notifier interface {
	Broadcast(ctx context.Context, storyID, title, category string) error
}

// Engine subscribes to the raw-articles change stream and assigns each
// newly inserted article to a Story Cluster (§4.3), then evaluates the
// status machine inline on every mutation (§4.4).
type Engine struct {
	Articles      store.Store[entity.RawArticle]
	Clusters      store.Store[entity.StoryCluster]
	Leases        store.Store[entity.ChangeStreamLease]
	Notifications store.Store[entity.NotificationRecord]
	Subscriber    store.Subscriber
	Notifier      Notifier // optional; nil disables broadcast dispatch
	NewID         IDGenerator
	Now           func() time.Time
	Logger        *slog.Logger
}

const consumerName = "clustering"

// Run subscribes to one change-stream partition per entry in partitions and
// blocks until ctx is cancelled or a partition's subscriber errors (§5:
// one goroutine per partition).
func (e *Engine) Run(ctx context.Context, partitions []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range partitions {
		partition := p
		g.Go(func() error {
			return e.runPartition(ctx, partition)
		})
	}
	return g.Wait()
}

func (e *Engine) runPartition(ctx context.Context, partition string) error {
	lease, err := e.Leases.Get(ctx, consumerName, partition)
	checkpoint := ""
	if err == nil {
		checkpoint = lease.Value.Checkpoint
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("cluster: load lease for partition %s: %w", partition, err)
	}

	events, err := e.Subscriber.Subscribe(ctx, consumerName, partition, checkpoint)
	if err != nil {
		return fmt.Errorf("cluster: subscribe partition %s: %w", partition, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.handleEvent(ctx, ev); err != nil {
				e.Logger.Error("cluster: event handling failed", slog.String("partition", partition), slog.Any("error", err))
				continue
			}
			if err := e.checkpoint(ctx, partition, ev.CheckpointToken()); err != nil {
				e.Logger.Error("cluster: checkpoint advance failed", slog.String("partition", partition), slog.Any("error", err))
			}
		}
	}
}

func (e *Engine) checkpoint(ctx context.Context, partition, token string) error {
	for attempt := 0; attempt < 5; attempt++ {
		existing, err := e.Leases.Get(ctx, consumerName, partition)
		expected := ""
		lease := entity.ChangeStreamLease{ConsumerName: consumerName, Partition: partition}
		if err == nil {
			expected = existing.Version
			lease = existing.Value
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		lease.Checkpoint = token
		lease.UpdatedAt = e.Now()
		_, err = e.Leases.Upsert(ctx, consumerName, partition, lease, expected)
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
	return fmt.Errorf("cluster: checkpoint advance exhausted retries for partition %s", partition)
}

func (e *Engine) handleEvent(ctx context.Context, ev store.ChangeEvent) error {
	if ev.Op != store.ChangeUpsert {
		return nil
	}
	item, err := e.Articles.Get(ctx, ev.PartitionKey, ev.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if item.Value.Processed {
		return nil
	}
	return e.AssignArticle(ctx, &item.Value, item.Version)
}

// AssignArticle runs the matching cascade for article and writes the
// outcome (§4.3). articleVersion is the article's current store
// version, used to mark it Processed once clustering succeeds.
func (e *Engine) AssignArticle(ctx context.Context, article *entity.RawArticle, articleVersion string) error {
	now := e.Now()
	candidates, err := FindCandidates(ctx, e.Clusters, article, now)
	if err != nil {
		return fmt.Errorf("cluster: find candidates: %w", err)
	}
	metrics.ClusterCandidateCount.Observe(float64(len(candidates)))

	idx, outcome := Match(article, candidates)
	metrics.ClusterAssignmentsTotal.WithLabelValues(string(outcome)).Inc()

	if outcome == OutcomeNewCluster {
		return e.createCluster(ctx, article, now)
	}

	for tries := 0; tries < 5; tries++ {
		matched := candidates[idx]
		if link, ok := matched.Value.SourceLinks[article.SourceID]; ok {
			if ResolveDuplicateSource(article, link) == KeepExisting {
				// This source already contributes a newer article to this
				// cluster; the incoming one does not belong here. §4.3
				// routes it to a second-choice candidate or a new cluster —
				// with only one match surfaced by the cascade, fall back to
				// starting a new cluster for it.
				return e.createCluster(ctx, article, now)
			}
		}
		_, alreadyLinked := matched.Value.SourceLinks[article.SourceID]
		isGainingSources := !alreadyLinked

		ApplyAssignment(&matched.Value, article, now)
		shouldNotify := status.Apply(&matched.Value, isGainingSources, now)

		_, err := e.Clusters.Upsert(ctx, matched.PartitionKey, matched.ID, matched.Value, matched.Version)
		if err == nil {
			if shouldNotify {
				e.dispatchBroadcast(ctx, matched.ID, matched.Value.Title, matched.Value.Category, now)
			}
			return e.markProcessed(ctx, article, articleVersion)
		}
		var conflict *store.ConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("cluster: upsert cluster %s: %w", matched.ID, err)
		}
		metrics.ConflictRetriesTotal.WithLabelValues("story_clusters").Inc()
		refreshed, getErr := e.Clusters.Get(ctx, matched.PartitionKey, matched.ID)
		if getErr != nil {
			return fmt.Errorf("cluster: reload cluster %s after conflict: %w", matched.ID, getErr)
		}
		candidates[idx] = refreshed
	}
	return fmt.Errorf("cluster: assignment exhausted retries for article %s", article.ID)
}

// dispatchBroadcast persists the idempotency-guard NotificationRecord
// (§3, the "single notification per story" invariant) and, if a Notifier
// is configured, dispatches the broadcast. Best-effort: a failure here
// never unwinds the status write that already made
// push_notification_sent==true durable, since that write, not this
// dispatch, is what the at-most-once guarantee actually requires.
func (e *Engine) dispatchBroadcast(ctx context.Context, storyID, title, category string, now time.Time) {
	if e.Notifications != nil {
		if _, err := e.Notifications.Upsert(ctx, storyID, storyID, entity.NotificationRecord{StoryID: storyID, BroadcastAt: now}, ""); err != nil {
			e.Logger.Warn("cluster: notification record persist failed", slog.String("story_id", storyID), slog.Any("error", err))
		}
	}
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Broadcast(ctx, storyID, title, category); err != nil {
		e.Logger.Error("cluster: broadcast dispatch failed", slog.String("story_id", storyID), slog.Any("error", err))
	}
}

func (e *Engine) createCluster(ctx context.Context, article *entity.RawArticle, now time.Time) error {
	cluster := entity.NewStoryCluster(e.NewID(), article, now)
	if _, err := e.Clusters.Upsert(ctx, cluster.Category, cluster.ID, *cluster, ""); err != nil {
		return fmt.Errorf("cluster: create cluster: %w", err)
	}
	return e.markProcessedByID(ctx, article)
}

func (e *Engine) markProcessed(ctx context.Context, article *entity.RawArticle, version string) error {
	updated := *article
	updated.Processed = true
	_, err := e.Articles.Upsert(ctx, article.PublishedDate, article.ID, updated, version)
	return err
}

// markProcessedByID re-fetches the article to get its current version
// before marking it processed; used on the create-cluster path where the
// caller's copy of the version may be stale after the cluster write.
func (e *Engine) markProcessedByID(ctx context.Context, article *entity.RawArticle) error {
	current, err := e.Articles.Get(ctx, article.PublishedDate, article.ID)
	if err != nil {
		return fmt.Errorf("cluster: reload article %s: %w", article.ID, err)
	}
	return e.markProcessed(ctx, &current.Value, current.Version)
}
