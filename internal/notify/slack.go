package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"newsreel/internal/observability/metrics"
	"newsreel/internal/resilience/circuitbreaker"
)

// SlackConfig configures a Slack Incoming Webhook broadcaster.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
}

// SlackBroadcaster sends breaking-story broadcasts to Slack via Incoming Webhook.
type SlackBroadcaster struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	logger      *slog.Logger
}

// NewSlackBroadcaster validates the configured webhook URL and returns a
// broadcaster rate-limited to Slack's documented 1 message/second ceiling.
func NewSlackBroadcaster(config SlackConfig, logger *slog.Logger) (*SlackBroadcaster, error) {
	if err := validateWebhookURL(config.WebhookURL); err != nil {
		return nil, fmt.Errorf("slack broadcaster: %w", err)
	}
	return &SlackBroadcaster{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(1.0, 1),
		breaker:     circuitbreaker.New(circuitbreaker.DefaultConfig("slack-webhook")),
		logger:      logger,
	}, nil
}

type slackWebhookPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string            `json:"type"`
	Text     *slackTextObject  `json:"text,omitempty"`
	Elements []slackTextObject `json:"elements,omitempty"`
}

type slackTextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	slackMaxSectionTextLength = 3000
	slackMaxFallbackLength    = 150
	slackTruncationSuffix     = "..."
)

func (s *SlackBroadcaster) buildBlockKitPayload(storyID, title, category string) slackWebhookPayload {
	fallbackText := fmt.Sprintf("Breaking: %s (%s)", title, category)
	if len(fallbackText) > slackMaxFallbackLength {
		fallbackText = fallbackText[:slackMaxFallbackLength-len(slackTruncationSuffix)] + slackTruncationSuffix
	}

	sectionText := truncate(fmt.Sprintf("*%s*\n\nBreaking story (id: %s)", title, storyID), slackMaxSectionTextLength, slackTruncationSuffix)

	sectionBlock := slackBlock{Type: "section", Text: &slackTextObject{Type: "mrkdwn", Text: sectionText}}
	contextBlock := slackBlock{Type: "context", Elements: []slackTextObject{{
		Type: "mrkdwn",
		Text: fmt.Sprintf("%s • %s", category, time.Now().Format(time.RFC3339)),
	}}}

	return slackWebhookPayload{Text: fallbackText, Blocks: []slackBlock{sectionBlock, contextBlock}}
}

func (s *SlackBroadcaster) sendWebhookRequest(ctx context.Context, storyID, title, category string) error {
	payload := s.buildBlockKitPayload(storyID, title, category)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Message: "slack rate limit exceeded", RetryAfter: extractSlackRetryAfter(resp)}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ClientError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("slack api client error: %s", string(body))}
	}
	if resp.StatusCode >= 500 {
		return &ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("slack api server error: %s", string(body))}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

func extractSlackRetryAfter(resp *http.Response) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if d, err := time.ParseDuration(h + "s"); err == nil {
			return d
		}
	}
	return 5 * time.Second
}

const (
	slackMaxAttempts = 2
	slackBaseDelay   = 5 * time.Second
)

func (s *SlackBroadcaster) sendWithRetry(ctx context.Context, requestID, storyID, title, category string) error {
	var lastErr error
	for attempt := 1; attempt <= slackMaxAttempts; attempt++ {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.sendWebhookRequest(ctx, storyID, title, category)
		})

		if err == nil {
			s.logger.Info("slack broadcast sent", slog.String("request_id", requestID), slog.String("story_id", storyID), slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			s.logger.Warn("slack rate limit hit, backing off",
				slog.String("request_id", requestID), slog.String("story_id", storyID), slog.Duration("retry_after", rateLimitErr.RetryAfter))
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			s.logger.Error("slack broadcast failed with non-retryable error",
				slog.String("request_id", requestID), slog.String("story_id", storyID), slog.Any("error", err))
			return err
		}

		if attempt < slackMaxAttempts {
			delay := slackBaseDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}
	return fmt.Errorf("slack broadcast failed after %d attempts: %w", slackMaxAttempts, lastErr)
}

// Broadcast implements Broadcaster.
func (s *SlackBroadcaster) Broadcast(ctx context.Context, storyID, title, category string) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if err := s.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	err := s.sendWithRetry(ctx, requestID, storyID, title, category)
	if err == nil {
		metrics.NotificationsSentTotal.WithLabelValues("slack").Inc()
	}
	return err
}
