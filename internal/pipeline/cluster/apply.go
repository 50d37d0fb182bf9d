package cluster

import (
	"time"

	"newsreel/internal/domain/entity"
)

// DuplicateSourceAction is the decision for an article whose source_id
// already has a linked article in the matched cluster (§4.3,
// "Duplicate-source prevention").
type DuplicateSourceAction string

const (
	// ReplaceExisting: the new article is newer (by published_at) and
	// supersedes the one currently linked for this source_id.
	ReplaceExisting DuplicateSourceAction = "replace_existing"
	// KeepExisting: the already-linked article is newer or equal; this
	// article must be linked elsewhere (a different candidate) or start a
	// new cluster instead.
	KeepExisting DuplicateSourceAction = "keep_existing"
)

// ResolveDuplicateSource decides between a new article and the article
// already linked to the cluster for the same source_id.
func ResolveDuplicateSource(newArticle *entity.RawArticle, existing entity.SourceLink) DuplicateSourceAction {
	if newArticle.PublishedAt.After(existing.PublishedAt) {
		return ReplaceExisting
	}
	return KeepExisting
}

func removeID(ids []string, target string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// ApplyAssignment links article into cluster per the post-assignment update
// rules (§4.3): append the article id, bump the entity histogram,
// possibly replace the title, refresh verification_level/last_updated/
// update_count. If article.SourceID already has a linked article, the
// caller must have already resolved ResolveDuplicateSource == ReplaceExisting
// before calling this — ApplyAssignment unconditionally supersedes whatever
// SourceLinks currently holds for that source_id.
func ApplyAssignment(cluster *entity.StoryCluster, article *entity.RawArticle, now time.Time) {
	if existing, ok := cluster.SourceLinks[article.SourceID]; ok {
		cluster.SourceArticles = removeID(cluster.SourceArticles, existing.ArticleID)
	}
	cluster.SourceArticles = append(cluster.SourceArticles, article.ID)
	cluster.SourceLinks[article.SourceID] = entity.SourceLink{ArticleID: article.ID, PublishedAt: article.PublishedAt}

	existingEntities := histogramKeys(cluster.EntityHistogram)
	for _, e := range article.Entities {
		cluster.EntityHistogram[e.Text]++
	}

	if len(article.Title) > len(cluster.Title) &&
		EntityOverlap(entityTexts(article.Entities), existingEntities) >= minEntityOverlapTitleReplace {
		cluster.Title = article.Title
	}

	sourceIDs := make([]string, 0, len(cluster.SourceLinks))
	for id := range cluster.SourceLinks {
		sourceIDs = append(sourceIDs, id)
	}
	cluster.VerificationLevel = entity.RecomputeVerificationLevel(sourceIDs)
	cluster.LastUpdated = now
	cluster.UpdateCount++
}
