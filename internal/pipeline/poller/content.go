package poller

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"newsreel/internal/resilience/circuitbreaker"
)

// Sentinel errors for the content enricher, mirrored as a small, local set
// rather than importing a usecase-layer error package (this module has no
// equivalent layer to own them).
var (
	ErrInvalidURL        = errors.New("poller: invalid article url")
	ErrPrivateIP         = errors.New("poller: article url resolves to a private ip")
	ErrBodyTooLarge      = errors.New("poller: article response too large")
	ErrReadabilityFailed = errors.New("poller: readability extraction failed")
)

// ContentFetchConfig controls the readability-based full-text enrichment
// step: when a feed entry's own RSS content falls short of Threshold
// characters, the article's own page is fetched and run through Mozilla's
// Readability algorithm to recover a usable body (§4.1's boilerplate
// rule names "fetch full content" as the remedy, not just rejection).
type ContentFetchConfig struct {
	Enabled        bool
	Threshold      int
	Timeout        time.Duration
	MaxBodySize    int64
	MaxRedirects   int
	DenyPrivateIPs bool
}

// DefaultContentFetchConfig mirrors the thresholds proven out for RSS
// content enhancement: most publishers' RSS bodies are teasers, so a
// 1500-character floor catches the common case without over-fetching.
func DefaultContentFetchConfig() ContentFetchConfig {
	return ContentFetchConfig{
		Enabled:        true,
		Threshold:      1500,
		Timeout:        10 * time.Second,
		MaxBodySize:    10 * 1024 * 1024,
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// ContentFetcher recovers full article text for entries whose RSS payload
// is too thin to cluster or summarize from.
type ContentFetcher interface {
	FetchContent(ctx context.Context, articleURL string) (string, error)
}

// ReadabilityFetcher implements ContentFetcher using go-readability, with
// SSRF-safe URL validation, a circuit breaker (WebScraperConfig — this is
// a different outbound dependency than the feed-fetch circuit, and trips
// independently), and a hard response-size ceiling.
type ReadabilityFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	config         ContentFetchConfig
}

// NewReadabilityFetcher builds a ReadabilityFetcher, validating every
// redirect target the same way the initial URL is validated.
func NewReadabilityFetcher(config ContentFetchConfig) *ReadabilityFetcher {
	f := &ReadabilityFetcher{
		circuitBreaker: circuitbreaker.New(circuitbreaker.WebScraperConfig()),
		config:         config,
	}
	f.client = &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.config.MaxRedirects {
				return fmt.Errorf("poller: %d redirects exceeds limit", len(via))
			}
			return validateURL(req.URL.String(), f.config.DenyPrivateIPs)
		},
	}
	return f
}

// FetchContent retrieves articleURL and extracts its readable text.
func (f *ReadabilityFetcher) FetchContent(ctx context.Context, articleURL string) (string, error) {
	if err := validateURL(articleURL, f.config.DenyPrivateIPs); err != nil {
		return "", err
	}
	result, err := f.circuitBreaker.Execute(func() (interface{}, error) {
		return f.doFetch(ctx, articleURL)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (f *ReadabilityFetcher) doFetch(ctx context.Context, articleURL string) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", "NewsreelBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("content fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content fetch: HTTP %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, f.config.MaxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("content fetch: read body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return "", fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}

	finalURL, err := url.Parse(articleURL)
	if err != nil {
		finalURL = nil
	}
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	article, err := readability.FromReader(io.NopCloser(bytes.NewReader(body)), finalURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadabilityFailed, err)
	}
	if article.TextContent != "" {
		return article.TextContent, nil
	}
	if article.Content != "" {
		return article.Content, nil
	}
	return "", fmt.Errorf("%w: no readable content found", ErrReadabilityFailed)
}

// validateURL blocks everything but http/https and, when denyPrivateIPs is
// set, any hostname that resolves to a loopback/private/link-local
// address — the standard SSRF guard for a server-side content-enhancement
// fetcher.
func validateURL(urlStr string, denyPrivateIPs bool) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return fmt.Errorf("%w: empty hostname", ErrInvalidURL)
	}
	if !denyPrivateIPs {
		return nil
	}
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("%w: dns lookup failed for %s: %v", ErrInvalidURL, hostname, err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateIP, hostname, ip)
		}
	}
	return nil
}
