package poller

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsreel/internal/domain/entity"
	"newsreel/internal/pipeline/normalize"
)

// rejectReason explains why an item never became a Raw Article (§4.1
// "rejection rules").
type rejectReason string

const (
	rejectNone        rejectReason = ""
	rejectNoURL       rejectReason = "no_resolvable_url"
	rejectNoTitle     rejectReason = "no_title"
	rejectTooOld      rejectReason = "too_old"
	rejectBoilerplate rejectReason = "boilerplate"
)

// maxEntryAge is the default rejection horizon for entries whose
// published_at is too far in the past (§4.1, default 7 days).
const maxEntryAge = 7 * 24 * time.Hour

// minBodyWords is the floor below which a stripped body reads as
// boilerplate/spam rather than an article (§4.1 "spam/boilerplate
// heuristic").
const minBodyWords = 8

// minTextToMarkupRatio and rawMarkupFloor catch pages that are mostly nav
// chrome or an ad wrapper around a thin sliver of text: below this ratio
// of stripped-text length to raw-HTML length, the entry reads as markup,
// not prose. rawMarkupFloor skips the check on bodies too short for the
// ratio to mean anything either way.
const (
	minTextToMarkupRatio = 0.15
	rawMarkupFloor       = 200
)

// minUniqueWordRatio and repetitionWordFloor catch auto-generated spam
// pages that loop the same phrase rather than writing prose: below this
// ratio of distinct words to total words, with enough words sampled to be
// meaningful, the entry reads as repetition.
const (
	minUniqueWordRatio  = 0.35
	repetitionWordFloor = 20
)

// trackerOnlyDomains are hosts known to serve ad/tracking redirects and
// pixel pages rather than article content; an entry resolving to one is
// dropped outright regardless of body length.
var trackerOnlyDomains = map[string]bool{
	"doubleclick.net":       true,
	"googlesyndication.com": true,
	"googletagmanager.com":  true,
	"google-analytics.com":  true,
	"scorecardresearch.com": true,
	"outbrain.com":          true,
	"taboola.com":           true,
	"adnxs.com":             true,
	"2mdn.net":              true,
}

func isTrackerDomain(domain string) bool {
	for tracker := range trackerOnlyDomains {
		if domain == tracker || strings.HasSuffix(domain, "."+tracker) {
			return true
		}
	}
	return false
}

func isLowTextToMarkupRatio(rawHTML, strippedText string) bool {
	if len(rawHTML) < rawMarkupFloor {
		return false
	}
	return float64(len(strippedText))/float64(len(rawHTML)) < minTextToMarkupRatio
}

func isExcessiveRepetition(body string) bool {
	words := strings.Fields(strings.ToLower(body))
	if len(words) < repetitionWordFloor {
		return false
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen))/float64(len(words)) < minUniqueWordRatio
}

// isBoilerplate runs §4.1's full spam/boilerplate heuristic: a thin body,
// a low text-to-markup ratio, excessive repetition, or a known
// tracker-only domain each independently mark an entry as boilerplate.
func isBoilerplate(domain, rawBody, title, body string) bool {
	if isTrackerDomain(domain) {
		return true
	}
	if wordCount(body) < minBodyWords && wordCount(title) < 4 {
		return true
	}
	if isLowTextToMarkupRatio(rawBody, body) {
		return true
	}
	return isExcessiveRepetition(body)
}

var extractor normalize.EntityExtractor = normalize.HeuristicExtractor{}

// resolveURL makes item.URL absolute against the feed's own URL, matching
// §4.1's "absolute URL resolution" rule for feeds that publish
// root-relative links. The result also has to clear entity.ValidateURL's
// SSRF guard: this is the URL the enrichment fetch (ContentFetcher) later
// dereferences, and nothing downstream re-checks it before that request
// goes out.
func resolveURL(feedURL, itemURL string) (string, bool) {
	if itemURL == "" {
		return "", false
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(itemURL)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme == "" || resolved.Host == "" {
		return "", false
	}
	resolvedURL := resolved.String()
	if err := entity.ValidateURL(resolvedURL); err != nil {
		return "", false
	}
	return resolvedURL, true
}

// stripHTML removes markup while keeping the visible text, matching
// §4.1's "boilerplate HTML stripping preserving text/removing links" rule:
// goquery walks the DOM, dropping anchor/script/style nodes outright and
// flattening everything else to text.
func stripHTML(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script, style, a").Remove()
	text := doc.Text()
	return strings.Join(strings.Fields(text), " ")
}

// wordCount is a cheap boilerplate signal: a body with too few words after
// stripping is more likely a stub/teaser or ad copy than real article text.
func wordCount(s string) int {
	return len(strings.Fields(s))
}

// sourceDomain extracts the registrable host for dedup-barrier partitioning
// and source-identity bookkeeping.
func sourceDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// normalizeEntry validates and converts one fetched FeedItem into a
// candidate Raw Article, applying every rejection rule in §4.1 except
// the de-duplication barrier (handled separately — it needs store access).
// If contentCfg is enabled and the RSS body falls short of its threshold,
// enricher is consulted for the article's own page before the boilerplate
// rejection is applied. enricher may be nil to skip enrichment entirely.
// Returns rejectNone on success.
func normalizeEntry(ctx context.Context, cfg entity.FeedConfig, item FeedItem, now time.Time, newID func() string, enricher ContentFetcher, contentCfg ContentFetchConfig) (entity.RawArticle, rejectReason) {
	resolvedURL, ok := resolveURL(cfg.URL, item.URL)
	if !ok {
		return entity.RawArticle{}, rejectNoURL
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return entity.RawArticle{}, rejectNoTitle
	}

	publishedAt := item.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}
	if now.Sub(publishedAt) > maxEntryAge {
		return entity.RawArticle{}, rejectTooOld
	}

	domain := sourceDomain(resolvedURL)

	rawBody := item.Content
	if rawBody == "" {
		rawBody = item.Description
	}
	description := stripHTML(item.Description)
	content := stripHTML(item.Content)
	if enricher != nil && contentCfg.Enabled && len(content) < contentCfg.Threshold {
		if fetched, err := enricher.FetchContent(ctx, resolvedURL); err == nil && len(fetched) > len(content) {
			content = strings.Join(strings.Fields(fetched), " ")
			rawBody = fetched // already readability-extracted text, not raw markup
		}
	}
	body := content
	if body == "" {
		body = description
	}
	if isBoilerplate(domain, rawBody, title, body) {
		return entity.RawArticle{}, rejectBoilerplate
	}

	language := cfg.Language
	if language == "" {
		language = "en"
	}

	entities := extractor.Extract(title, body)
	category := cfg.CategoryHint
	if category == "" {
		category = entity.CategoryFor(resolvedURL, title)
	}

	article := entity.RawArticle{
		ID:               newID(),
		SourceID:         cfg.ID,
		SourceDomain:     domain,
		SourceTier:       int(cfg.Tier),
		URL:              resolvedURL,
		Title:            title,
		Description:      description,
		Content:          content,
		Author:           item.Author,
		PublishedAt:      publishedAt,
		FetchedAt:        now,
		PublishedDate:    publishedAt.UTC().Format("2006-01-02"),
		Language:         language,
		Category:         category,
		Entities:         entities,
		StoryFingerprint: normalize.StoryFingerprint(title, description, entities),
		ExactHash:        normalize.ExactHash(title, domain),
		SimHash:          normalize.SimHash(title, description),
	}
	return article, rejectNone
}
