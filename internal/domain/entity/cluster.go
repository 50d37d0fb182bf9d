package entity

import "time"

// ClusterStatus is the position of a StoryCluster in the verification
// lifecycle (§4.4).
type ClusterStatus string

const (
	StatusMonitoring ClusterStatus = "MONITORING"
	StatusDeveloping ClusterStatus = "DEVELOPING"
	StatusBreaking   ClusterStatus = "BREAKING"
	StatusVerified   ClusterStatus = "VERIFIED"
)

// SourceLink records which article a source currently contributes to a
// cluster, and when it was published — the bookkeeping duplicate-source
// prevention needs (§4.3) without requiring a round-trip to the
// article store to compare published_at values.
type SourceLink struct {
	ArticleID   string
	PublishedAt time.Time
}

// Location is the optional geographic tag on a cluster.
type Location struct {
	Country     string
	Region      string
	Coordinates *[2]float64 // [lat, lng]
}

// Summary is the latest AI-generated synthesis of a cluster's source
// articles. A zero-value Summary (Version == 0) means no summary exists yet.
type Summary struct {
	Text                   string
	Version                int
	GeneratedAt            time.Time
	SourceCountAtGeneration int
	CostUSD                float64
	ModelID                string
	CachedTokens           int
	PromptTokens           int
	CompletionTokens       int
}

// StoryCluster is one news event: the aggregate of every RawArticle believed
// to describe the same real-world occurrence (§3).
//
// Ownership: created and mutated only by the clustering engine (title/
// entity/source bookkeeping) and the status machine and breaking-news
// monitor (Status and the notification fields). The summarizer may only
// mutate Summary and VersionHistory — see UpdateSummary.
type StoryCluster struct {
	ID       string
	Category string // partition key

	Title              string
	// Fingerprint is the story_fingerprint of the article that created this
	// cluster, kept fixed thereafter as the clustering engine's fast-path
	// equality key (§4.3 rule 1). Not touched by post-assignment update.
	Fingerprint        string
	Status             ClusterStatus
	VerificationLevel  int // == len(unique source_id in SourceArticles)
	SourceArticles     []string // raw article ids, at most one per source_id
	SourceLinks        map[string]SourceLink // source_id -> currently-linked article
	EntityHistogram    map[string]int
	CentroidKeywords   map[string]struct{}

	// FirstSeen is set once at creation and never changes.
	FirstSeen time.Time
	// LastUpdated refreshes only on new-source linkage, explicit status
	// change, or a longer title replacing the old one. Summary generation
	// MUST NOT touch this field.
	LastUpdated time.Time

	UpdateCount          int
	BreakingDetectedAt   *time.Time
	PushNotificationSent bool
	PushNotificationSentAt *time.Time

	Summary        Summary
	VersionHistory []Summary

	ImportanceScore float64
	ConfidenceScore float64

	Location *Location

	// Version is the optimistic-concurrency token (store ETag, §5/§6).
	Version string
}

// NewStoryCluster creates a fresh cluster from its first linked article,
// per §4.3 "no candidate matching → create new cluster".
func NewStoryCluster(id string, article *RawArticle, now time.Time) *StoryCluster {
	c := &StoryCluster{
		ID:                id,
		Category:          article.Category,
		Title:             article.Title,
		Fingerprint:       article.StoryFingerprint,
		Status:            StatusMonitoring,
		VerificationLevel: 1,
		SourceArticles:    []string{article.ID},
		SourceLinks: map[string]SourceLink{
			article.SourceID: {ArticleID: article.ID, PublishedAt: article.PublishedAt},
		},
		EntityHistogram:   map[string]int{},
		CentroidKeywords:  map[string]struct{}{},
		FirstSeen:         now,
		LastUpdated:       now,
		UpdateCount:       0,
		Location:          nil,
	}
	for _, e := range article.Entities {
		c.EntityHistogram[e.Text]++
	}
	return c
}

// RecomputeVerificationLevel restores the distinct-source-count invariant
// from a lookup of source ids for the cluster's linked articles. Callers
// own fetching the RawArticle.SourceID values; this function only does the
// counting, keeping it a pure function of its inputs for easy testing.
func RecomputeVerificationLevel(sourceIDs []string) int {
	seen := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// UpdateSummary replaces the cluster's summary without touching LastUpdated
// or FirstSeen — the load-bearing invariant of §4.5/§9. It is the
// only mutation path the summarizer is permitted to use.
func (c *StoryCluster) UpdateSummary(s Summary) {
	if c.Summary.Version > 0 {
		c.VersionHistory = append(c.VersionHistory, c.Summary)
		const maxHistory = 10
		if len(c.VersionHistory) > maxHistory {
			c.VersionHistory = c.VersionHistory[len(c.VersionHistory)-maxHistory:]
		}
	}
	s.Version = c.Summary.Version + 1
	c.Summary = s
}
