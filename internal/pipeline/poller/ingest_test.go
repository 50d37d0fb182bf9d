package poller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"newsreel/internal/domain/entity"
)

func testFeedConfig() entity.FeedConfig {
	return entity.FeedConfig{ID: "reuters-world", URL: "https://www.reuters.com/world/", Tier: entity.FeedTierNormal, Language: "en"}
}

func newIDSeq() func() string {
	n := 0
	return func() string { n++; return "article-" + string(rune('a'+n-1)) }
}

func TestNormalizeEntry_AcceptsWellFormedItem(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{
		Title:       "Senator Jane Smith wins re-election after tense campaign",
		URL:         "/world/senator-wins-reelection",
		Description: "Senator Jane Smith secured a narrow victory Tuesday night after a bruising campaign against her closest rival in the state capital.",
		PublishedAt: now.Add(-time.Hour),
	}

	article, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectNone, reason)
	assert.Equal(t, "https://www.reuters.com/world/senator-wins-reelection", article.URL)
	assert.Equal(t, "reuters.com", article.SourceDomain)
	assert.NotEmpty(t, article.StoryFingerprint)
	assert.NotEmpty(t, article.ExactHash)
}

func TestNormalizeEntry_RejectsMissingTitle(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{URL: "/world/no-title", Description: "Body text here that is long enough to pass the boilerplate floor easily."}

	_, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectNoTitle, reason)
}

func TestNormalizeEntry_RejectsUnresolvableURL(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{Title: "Some headline", URL: ""}

	_, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectNoURL, reason)
}

func TestNormalizeEntry_RejectsEntryOlderThanHorizon(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{
		Title:       "An old story about something that happened a while back",
		URL:         "/world/old-story",
		Description: "Body text here that is long enough to pass the boilerplate floor easily, several words over the limit.",
		PublishedAt: now.Add(-8 * 24 * time.Hour),
	}

	_, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectTooOld, reason)
}

func TestNormalizeEntry_RejectsThinBoilerplateBody(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{
		Title:       "Ad",
		URL:         "/world/ad",
		Description: "Buy now.",
		PublishedAt: now,
	}

	_, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectBoilerplate, reason)
}

func TestNormalizeEntry_RejectsTrackerOnlyDomain(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{
		Title:       "A perfectly normal looking headline about world news",
		URL:         "https://ad.doubleclick.net/ns/click",
		Description: "This description is long enough to clear every other rejection rule on its own merits.",
		PublishedAt: now,
	}

	_, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectBoilerplate, reason)
}

func TestNormalizeEntry_RejectsLowTextToMarkupRatio(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	var markup strings.Builder
	for i := 0; i < 40; i++ {
		markup.WriteString(`<div class="ad-slot" data-tracking="x"><span></span></div>`)
	}
	markup.WriteString("short")
	item := FeedItem{
		Title:       "A perfectly normal looking headline about world news",
		URL:         "/world/ad-wrapper",
		Description: markup.String(),
		PublishedAt: now,
	}

	_, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectBoilerplate, reason)
}

func TestNormalizeEntry_RejectsExcessiveRepetition(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{
		Title:       "A perfectly normal looking headline about world news",
		URL:         "/world/spam",
		Description: strings.Repeat("buy cheap watches now ", 20),
		PublishedAt: now,
	}

	_, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectBoilerplate, reason)
}

func TestNormalizeEntry_StripsHTMLMarkup(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	item := FeedItem{
		Title:       "Senator Jane Smith wins re-election after tense campaign",
		URL:         "/world/markup",
		Description: `<p>Senator <a href="https://x.example.com">Jane Smith</a> secured a narrow victory <script>track()</script> Tuesday night after a bruising campaign.</p>`,
		PublishedAt: now,
	}

	article, reason := normalizeEntry(context.Background(), testFeedConfig(), item, now, newIDSeq(), nil, DefaultContentFetchConfig())

	assert.Equal(t, rejectNone, reason)
	assert.NotContains(t, article.Description, "<")
	assert.NotContains(t, article.Description, "track()")
}

func TestResolveURL_RootRelative(t *testing.T) {
	resolved, ok := resolveURL("https://www.reuters.com/world/", "/world/some-story")
	assert.True(t, ok)
	assert.Equal(t, "https://www.reuters.com/world/some-story", resolved)
}

func TestResolveURL_RejectsEmpty(t *testing.T) {
	_, ok := resolveURL("https://www.reuters.com/world/", "")
	assert.False(t, ok)
}

func TestResolveURL_RejectsPrivateNetworkTarget(t *testing.T) {
	_, ok := resolveURL("https://www.reuters.com/world/", "http://127.0.0.1:8080/admin")
	assert.False(t, ok)
}
