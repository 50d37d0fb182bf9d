package feed

import (
	"context"
	"fmt"
	"strings"

	"newsreel/internal/domain/entity"
	"newsreel/internal/store"
)

// Service provides the read-side use cases over story clusters that
// cmd/api exposes: the ranked feed, single-story lookup, and keyword
// search. It holds no write path — clusters are owned by the pipeline
// (internal/pipeline/cluster, internal/pipeline/summarize).
type Service struct {
	Clusters store.Store[entity.StoryCluster]
}

// DefaultFeedLimit bounds an unparameterized feed request.
const DefaultFeedLimit = 50

// MaxSearchScan bounds how many documents a cross-partition search reads
// before filtering, since store.Query has no text-search operator (
// §2 names "search" as a thin read-side feature, not a search-engine
// integration).
const MaxSearchScan = 500

// List returns a category's stories ranked by importance score, most
// important first. An empty category performs a cross-partition scan.
func (s *Service) List(ctx context.Context, category string, limit int) ([]entity.StoryCluster, error) {
	if category != "" && !isKnownCategory(category) {
		return nil, ErrUnknownCategory
	}
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	items, err := s.Clusters.Find(ctx, store.Query{
		PartitionKey: category,
		OrderBy:      "ImportanceScore",
		Descending:   true,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	return values(items), nil
}

// Get retrieves one story by category and id.
func (s *Service) Get(ctx context.Context, category, id string) (*entity.StoryCluster, error) {
	if id == "" {
		return nil, ErrInvalidStoryID
	}
	item, err := s.Clusters.Get(ctx, category, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrStoryNotFound
		}
		return nil, fmt.Errorf("get story: %w", err)
	}
	return &item.Value, nil
}

// Search performs a case-insensitive substring match over story titles,
// scanning up to MaxSearchScan documents across every category partition.
// Returns at most limit results, most recently updated first.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]entity.StoryCluster, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	items, err := s.Clusters.Find(ctx, store.Query{
		OrderBy:    "LastUpdated",
		Descending: true,
		Limit:      MaxSearchScan,
	})
	if err != nil {
		return nil, fmt.Errorf("search stories: %w", err)
	}

	needle := strings.ToLower(query)
	matches := make([]entity.StoryCluster, 0, limit)
	for _, item := range items {
		if len(matches) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(item.Value.Title), needle) ||
			strings.Contains(strings.ToLower(item.Value.Summary.Text), needle) {
			matches = append(matches, item.Value)
		}
	}
	return matches, nil
}

func values(items []store.Item[entity.StoryCluster]) []entity.StoryCluster {
	out := make([]entity.StoryCluster, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value)
	}
	return out
}

func isKnownCategory(category string) bool {
	for _, c := range entity.AllCategories() {
		if c == category {
			return true
		}
	}
	return false
}
