package cluster

import (
	"context"
	"time"

	"newsreel/internal/domain/entity"
	"newsreel/internal/store"
)

const (
	candidateLookback = 7 * 24 * time.Hour
	candidateWindow   = 6 * time.Hour
	maxCandidates     = 150
	// candidateFetchLimit bounds the store-side fetch before the tighter
	// in-memory published_at window is applied; generous enough that the
	// ±6h filter, not the store limit, determines what gets dropped.
	candidateFetchLimit = 1000
)

// FindCandidates retrieves the bounded candidate set for article (
// §4.3, "Candidate set"): same category, last_updated within the last 7
// days, ordered most-recent-first. The ±6h published_at window is a cluster
// attribute the store has no direct index for, so it's approximated here
// against last_updated (the closest available proxy for a cluster's most
// recent activity) and applied in-memory, then capped at maxCandidates.
func FindCandidates(ctx context.Context, s store.Store[entity.StoryCluster], article *entity.RawArticle, now time.Time) ([]store.Item[entity.StoryCluster], error) {
	items, err := s.Find(ctx, store.Query{
		PartitionKey: article.Category,
		Filters: []store.Filter{
			{Attribute: "LastUpdated", Op: store.OpGte, Value: now.Add(-candidateLookback)},
		},
		OrderBy:    "LastUpdated",
		Descending: true,
		Limit:      candidateFetchLimit,
	})
	if err != nil {
		return nil, err
	}

	lo := article.PublishedAt.Add(-candidateWindow)
	hi := article.PublishedAt.Add(candidateWindow)
	candidates := make([]store.Item[entity.StoryCluster], 0, len(items))
	for _, it := range items {
		if it.Value.LastUpdated.Before(lo) || it.Value.LastUpdated.After(hi) {
			continue
		}
		candidates = append(candidates, it)
		if len(candidates) == maxCandidates {
			break
		}
	}
	return candidates, nil
}
