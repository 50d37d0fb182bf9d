// Package monitor implements the breaking-news monitor: a periodic
// sweep of BREAKING clusters that compensates for the inline status
// machine never re-evaluating a cluster once new sources stop
// arriving (§4.6).
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsreel/internal/domain/entity"
	"newsreel/internal/observability/metrics"
	"newsreel/internal/pipeline/status"
	"newsreel/internal/store"
)

// Notifier dispatches a breaking-news broadcast. Mirrors the clustering
// engine's own narrow, consumer-owned interface rather than importing its
// type, so this package doesn't couple to internal/pipeline/cluster.
type Notifier interface {
	Broadcast(ctx context.Context, storyID, title, category string) error
}

// Monitor owns the periodic BREAKING-cluster sweep: idle-ages stories that
// have gone quiet past BreakingIdleTimeout, and re-attempts a broadcast for
// any still-fresh BREAKING story whose initial notification never went out
// (§4.6).
type Monitor struct {
	Clusters      store.Store[entity.StoryCluster]
	Notifications store.Store[entity.NotificationRecord]
	Notifier      Notifier // optional; nil disables broadcast dispatch

	Period                time.Duration
	IdleTimeout           time.Duration
	NotificationFreshness time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Run drives the tick loop until ctx is cancelled, mirroring the feed
// poller's own time.Ticker-based Run (§5's "independent long-running
// task" scheduling model).
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				m.Logger.Error("monitor: sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep scans every BREAKING cluster and applies both of §4.6's
// per-cluster checks. Exported directly (rather than only through Run) so
// cmd/worker and tests can drive one cycle synchronously.
func (m *Monitor) Sweep(ctx context.Context) error {
	breaking, err := m.Clusters.Find(ctx, store.Query{
		Filters: []store.Filter{{Attribute: "Status", Op: store.OpEq, Value: entity.StatusBreaking}},
	})
	if err != nil {
		return fmt.Errorf("monitor: find breaking clusters: %w", err)
	}

	now := m.Now()
	for _, item := range breaking {
		if err := m.sweepOne(ctx, item, now); err != nil {
			m.Logger.Error("monitor: sweep cluster failed", slog.String("cluster_id", item.ID), slog.Any("error", err))
		}
	}
	return nil
}

// sweepOne applies the idle-timeout check first; a cluster that transitions
// out of BREAKING is not also considered for notification redelivery, since
// it's no longer the fresh breaking story that check concerns (§4.6's
// two bullets both read "for every cluster with status == BREAKING").
func (m *Monitor) sweepOne(ctx context.Context, item store.Item[entity.StoryCluster], now time.Time) error {
	if now.Sub(item.Value.LastUpdated) >= m.IdleTimeout {
		return m.idleToVerified(ctx, item, now)
	}
	return m.redeliverIfFresh(ctx, item, now)
}

// idleToVerified evaluates the status machine (reusing status.Apply as the
// single source of truth for the transition table) and, on the expected
// BREAKING->VERIFIED move, explicitly bumps LastUpdated — the one case
// outside new-source-linkage where §3 permits touching it ("status
// explicitly changes") — and emits the audit log line §4.6 requires.
func (m *Monitor) idleToVerified(ctx context.Context, item store.Item[entity.StoryCluster], now time.Time) error {
	for attempt := 0; attempt < 5; attempt++ {
		cluster := item.Value
		prevStatus := cluster.Status
		status.Apply(&cluster, false, now)
		if cluster.Status == prevStatus {
			return nil
		}
		cluster.LastUpdated = now

		_, err := m.Clusters.Upsert(ctx, item.PartitionKey, item.ID, cluster, item.Version)
		if err == nil {
			m.Logger.Info("monitor: idle breaking cluster verified",
				slog.String("cluster_id", item.ID), slog.String("from", string(prevStatus)), slog.String("to", string(cluster.Status)))
			return nil
		}
		var conflict *store.ConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("monitor: persist idle transition for cluster %s: %w", item.ID, err)
		}
		metrics.ConflictRetriesTotal.WithLabelValues("story_clusters").Inc()
		refreshed, getErr := m.Clusters.Get(ctx, item.PartitionKey, item.ID)
		if getErr != nil {
			return fmt.Errorf("monitor: reload cluster %s after conflict: %w", item.ID, getErr)
		}
		item = refreshed
	}
	return fmt.Errorf("monitor: idle transition exhausted retries for cluster %s", item.ID)
}

// redeliverIfFresh re-attempts a broadcast for a still-BREAKING cluster
// whose original notification never went out (e.g. the dispatcher that
// should have sent it crashed before persisting push_notification_sent),
// bounded by NotificationFreshness so a story that's gone stale doesn't
// get a surprise notification long after it broke (§4.6).
func (m *Monitor) redeliverIfFresh(ctx context.Context, item store.Item[entity.StoryCluster], now time.Time) error {
	if item.Value.PushNotificationSent {
		return nil
	}
	if now.Sub(item.Value.FirstSeen) > m.NotificationFreshness {
		return nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		cluster := item.Value
		if cluster.PushNotificationSent {
			return nil
		}
		cluster.PushNotificationSent = true

		_, err := m.Clusters.Upsert(ctx, item.PartitionKey, item.ID, cluster, item.Version)
		if err == nil {
			m.dispatchBroadcast(ctx, item.ID, cluster.Title, cluster.Category, now)
			return nil
		}
		var conflict *store.ConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("monitor: persist notification redelivery for cluster %s: %w", item.ID, err)
		}
		metrics.ConflictRetriesTotal.WithLabelValues("story_clusters").Inc()
		refreshed, getErr := m.Clusters.Get(ctx, item.PartitionKey, item.ID)
		if getErr != nil {
			return fmt.Errorf("monitor: reload cluster %s after conflict: %w", item.ID, getErr)
		}
		item = refreshed
	}
	return fmt.Errorf("monitor: notification redelivery exhausted retries for cluster %s", item.ID)
}

func (m *Monitor) dispatchBroadcast(ctx context.Context, storyID, title, category string, now time.Time) {
	if m.Notifications != nil {
		if _, err := m.Notifications.Upsert(ctx, storyID, storyID, entity.NotificationRecord{StoryID: storyID, BroadcastAt: now}, ""); err != nil {
			m.Logger.Warn("monitor: notification record persist failed", slog.String("story_id", storyID), slog.Any("error", err))
		}
	}
	if m.Notifier == nil {
		return
	}
	if err := m.Notifier.Broadcast(ctx, storyID, title, category); err != nil {
		m.Logger.Error("monitor: broadcast dispatch failed", slog.String("story_id", storyID), slog.Any("error", err))
	}
}
