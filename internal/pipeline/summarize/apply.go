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

// generateAndApply runs one summarize-and-persist cycle for a single
// cluster: build the request from its linked sources, call provider, then
// merge the result via StoryCluster.UpdateSummary under optimistic-
// concurrency retry. path labels the SummaryGenerationTotal/cost metrics
// ("realtime" or "batch").
func generateAndApply(ctx context.Context, clusters store.Store[entity.StoryCluster], provider Provider, category, clusterID string, sources []entity.RawArticle, path string, now time.Time, logger *slog.Logger) error {
	req := buildSummaryRequestFromCluster(clusterID, sources)

	start := time.Now()
	result, err := provider.Summarize(ctx, req)
	duration := time.Since(start)
	metrics.SummarizationDuration.Observe(duration.Seconds())

	if err != nil {
		metrics.SummaryGenerationTotal.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("summarize: provider call for cluster %s: %w", clusterID, err)
	}

	outcome := "ok"
	if result.ModelID == FallbackModelID {
		outcome = "refusal"
	}
	metrics.SummaryGenerationTotal.WithLabelValues(path, outcome).Inc()
	metrics.SummaryCostUSDTotal.WithLabelValues(path, result.ModelID).Add(result.CostUSD)
	metrics.SummaryTokensTotal.WithLabelValues(path, "prompt").Add(float64(result.PromptTokens))
	metrics.SummaryTokensTotal.WithLabelValues(path, "completion").Add(float64(result.CompletionTokens))
	metrics.SummaryTokensTotal.WithLabelValues(path, "cached").Add(float64(result.CachedTokens))

	return applySummary(ctx, clusters, category, clusterID, result, now, logger)
}

// buildSummaryRequestFromCluster derives the request's metadata fields
// (category, verification_level) from the sources list's length, since
// the caller already filtered SourceArticles down to the linked set.
func buildSummaryRequestFromCluster(clusterID string, sources []entity.RawArticle) SummaryRequest {
	var title string
	excerpts := make([]SourceExcerpt, 0, len(sources))
	for _, a := range sources {
		if title == "" {
			title = a.Title
		}
		excerpts = append(excerpts, SourceExcerpt{
			SourceLabel: a.SourceDomain,
			SourceTier:  a.SourceTier,
			Title:       a.Title,
			Body:        a.Body(),
		})
	}
	return SummaryRequest{
		ClusterID:         clusterID,
		ClusterTitle:      title,
		VerificationLevel: len(sources),
		Sources:           excerpts,
	}
}

// applySummary persists result onto the cluster via UpdateSummary, which
// is the only path permitted to mutate Summary/VersionHistory — it
// deliberately leaves LastUpdated untouched (§4.5's critical
// invariant: summarization must never affect freshness ranking). Retries
// on optimistic-concurrency conflict since the clustering engine and
// status machine may be writing the same cluster concurrently.
func applySummary(ctx context.Context, clusters store.Store[entity.StoryCluster], category, clusterID string, result SummaryResult, now time.Time, logger *slog.Logger) error {
	for attempt := 0; attempt < 5; attempt++ {
		item, err := clusters.Get(ctx, category, clusterID)
		if err != nil {
			return fmt.Errorf("summarize: reload cluster %s: %w", clusterID, err)
		}
		cluster := item.Value
		cluster.UpdateSummary(entity.Summary{
			Text:                    result.Text,
			GeneratedAt:             now,
			SourceCountAtGeneration: cluster.VerificationLevel,
			CostUSD:                 result.CostUSD,
			ModelID:                 result.ModelID,
			CachedTokens:            result.CachedTokens,
			PromptTokens:            result.PromptTokens,
			CompletionTokens:        result.CompletionTokens,
		})
		_, err = clusters.Upsert(ctx, category, clusterID, cluster, item.Version)
		if err == nil {
			logger.Info("summarize: summary applied", slog.String("cluster_id", clusterID), slog.String("model_id", result.ModelID))
			return nil
		}
		var conflict *store.ConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("summarize: persist summary for cluster %s: %w", clusterID, err)
		}
		metrics.ConflictRetriesTotal.WithLabelValues("story_clusters").Inc()
	}
	return fmt.Errorf("summarize: persist summary exhausted retries for cluster %s", clusterID)
}
