package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"newsreel/internal/domain/entity"
	"newsreel/internal/observability/metrics"
	"newsreel/internal/pipeline/normalize"
	"newsreel/internal/store"
)

// feedPartition is the fixed partition key under which every feed's poll
// state is stored — the corpus of configured feeds is in the tens (
// §4.1), not large enough to warrant partitioning further.
const feedPartition = "feeds"

// circuitThreshold is F in §4.1's "per-feed circuit": after this many
// consecutive failures, cooldown switches to exponential backoff.
const circuitThreshold = 5

// Poller is the feed-poller engine: it owns the tick loop, the
// oldest-first schedule, and the normalize-then-barrier pipeline each
// fetched item passes through before becoming a Raw Article.
type Poller struct {
	Feeds      []entity.FeedConfig
	PollStates store.Store[entity.FeedPollState]
	Articles   store.Store[entity.RawArticle]
	Barrier    *normalize.Barrier
	Fetcher    Fetcher
	Enricher   ContentFetcher // optional; nil disables full-content enrichment
	ContentCfg ContentFetchConfig

	TickPeriod    time.Duration
	FeedsPerTick  int
	Cooldown      time.Duration
	CooldownTier1 time.Duration

	NewID  func() string
	Now    func() time.Time
	Logger *slog.Logger
}

// Run drives the tick loop until ctx is cancelled (§4.1's scheduling
// model: a fixed tick period, K feeds dispatched per tick).
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				p.Logger.Error("poller: tick failed", slog.Any("error", err))
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	due, err := p.loadDueFeeds(ctx)
	if err != nil {
		return fmt.Errorf("poller: load due feeds: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range due {
		feed := f
		g.Go(func() error {
			// A single feed's failure is isolated (§4.1 "Failure
			// semantics": per-feed, never halts the cycle) — pollFeed
			// already swallows its own errors into the poll-state
			// bookkeeping, so this goroutine never returns one.
			p.pollFeed(gctx, feed)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) loadDueFeeds(ctx context.Context) ([]dueFeed, error) {
	now := p.Now()
	due := make([]dueFeed, 0, len(p.Feeds))
	for _, cfg := range p.Feeds {
		state, err := p.PollStates.Get(ctx, feedPartition, cfg.ID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			state = store.Item[entity.FeedPollState]{Value: entity.FeedPollState{FeedID: cfg.ID}}
		}
		due = append(due, dueFeed{config: cfg, state: state.Value})
	}
	return selectDue(due, now, p.Cooldown, p.CooldownTier1, circuitThreshold, p.FeedsPerTick), nil
}

// pollFeed fetches, normalizes, and admits one feed's entries, then
// persists the updated poll-state cursor. Every outcome — success,
// not-modified, or failure — ends in exactly one poll-state write.
func (p *Poller) pollFeed(ctx context.Context, f dueFeed) {
	now := p.Now()
	etag, lastModified := "", ""
	if f.state.HTTPEtag != nil {
		etag = *f.state.HTTPEtag
	}
	if f.state.HTTPLastModified != nil {
		lastModified = *f.state.HTTPLastModified
	}

	result, err := p.Fetcher.Fetch(ctx, f.config.URL, etag, lastModified)
	if err != nil {
		p.Logger.Warn("poller: feed fetch failed", slog.String("feed_id", f.config.ID), slog.Any("error", err))
		metrics.FeedPolledTotal.WithLabelValues(f.config.ID, "error").Inc()
		p.recordPoll(ctx, f, now, nil, false)
		return
	}
	if result.NotModified {
		metrics.FeedPolledTotal.WithLabelValues(f.config.ID, "not_modified").Inc()
		p.recordPoll(ctx, f, now, &result, true)
		return
	}

	admitted := 0
	for _, item := range result.Items {
		article, reason := normalizeEntry(ctx, f.config, item, now, p.NewID, p.Enricher, p.ContentCfg)
		if reason != rejectNone {
			continue
		}
		ok, err := p.admit(ctx, &article)
		if err != nil {
			p.Logger.Error("poller: admit article failed", slog.String("feed_id", f.config.ID), slog.Any("error", err))
			continue
		}
		if ok {
			admitted++
		}
	}
	metrics.FeedPolledTotal.WithLabelValues(f.config.ID, "ok").Inc()

	f.state.ArticlesLastCycle = admitted
	p.recordPoll(ctx, f, now, &result, true)
}

// admit runs the de-duplication barrier and, if the article is accepted,
// writes it to the store (§4.1's "de-duplication barrier" and
// "outputs: Raw Article upserts").
func (p *Poller) admit(ctx context.Context, article *entity.RawArticle) (bool, error) {
	outcome, err := p.Barrier.Check(ctx, article.SourceDomain, article.ID, article.ExactHash, article.SimHash)
	if err != nil {
		return false, err
	}
	if outcome != normalize.Admitted {
		return false, nil
	}
	if _, err := p.Articles.Upsert(ctx, article.PublishedDate, article.ID, *article, ""); err != nil {
		return false, err
	}
	return true, nil
}

// recordPoll persists the poll-state cursor after one poll attempt,
// retrying on optimistic-concurrency conflicts the same way the clustering
// engine's checkpoint writer does.
func (p *Poller) recordPoll(ctx context.Context, f dueFeed, now time.Time, result *FetchResult, success bool) {
	for attempt := 0; attempt < 5; attempt++ {
		current, err := p.PollStates.Get(ctx, feedPartition, f.config.ID)
		expected := ""
		state := entity.FeedPollState{FeedID: f.config.ID}
		if err == nil {
			expected = current.Version
			state = current.Value
		} else if !errors.Is(err, store.ErrNotFound) {
			p.Logger.Error("poller: reload poll state failed", slog.String("feed_id", f.config.ID), slog.Any("error", err))
			return
		}

		state.LastPollAt = &now
		if success {
			state.LastSuccessAt = &now
			state.ConsecutiveFailures = 0
			if result != nil && !result.NotModified {
				if result.ETag != "" {
					state.HTTPEtag = &result.ETag
				}
				if result.LastModified != "" {
					state.HTTPLastModified = &result.LastModified
				}
				state.ArticlesLastCycle = f.state.ArticlesLastCycle
			}
		} else {
			state.ConsecutiveFailures++
		}

		if _, err := p.PollStates.Upsert(ctx, feedPartition, f.config.ID, state, expected); err != nil {
			var conflict *store.ConflictError
			if errors.As(err, &conflict) {
				metrics.ConflictRetriesTotal.WithLabelValues("feed_poll_states").Inc()
				continue
			}
			p.Logger.Error("poller: persist poll state failed", slog.String("feed_id", f.config.ID), slog.Any("error", err))
		}
		return
	}
	p.Logger.Error("poller: persist poll state exhausted retries", slog.String("feed_id", f.config.ID))
}
