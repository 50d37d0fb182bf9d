package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"newsreel/internal/observability/metrics"
	"newsreel/internal/resilience/circuitbreaker"
)

// DiscordConfig configures a Discord webhook broadcaster.
type DiscordConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
}

// DiscordBroadcaster sends breaking-story broadcasts to Discord via webhook.
type DiscordBroadcaster struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	logger      *slog.Logger
}

// NewDiscordBroadcaster validates the configured webhook URL and returns a
// broadcaster rate-limited to Discord's documented webhook ceiling of 30
// requests/minute, with the shared Claude/OpenAI-style circuit breaker
// wrapping outbound calls so a flapping Discord endpoint can't back up the
// monitor's sweep loop.
func NewDiscordBroadcaster(config DiscordConfig, logger *slog.Logger) (*DiscordBroadcaster, error) {
	if err := validateWebhookURL(config.WebhookURL); err != nil {
		return nil, fmt.Errorf("discord broadcaster: %w", err)
	}
	return &DiscordBroadcaster{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(0.5, 3), // 0.5 req/s (30 req/min), burst of 3
		breaker:     circuitbreaker.New(circuitbreaker.DefaultConfig("discord-webhook")),
		logger:      logger,
	}, nil
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      discordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"`
}

const (
	discordMaxTitleLength       = 256
	discordMaxDescriptionLength = 4096
	discordTruncationSuffix     = "..."
	discordBlueColor            = 5793266 // #5865F2
)

func (d *DiscordBroadcaster) buildEmbedPayload(storyID, title, category string) discordWebhookPayload {
	if len(title) > discordMaxTitleLength {
		title = title[:discordMaxTitleLength]
	}
	description := truncate(fmt.Sprintf("Breaking story in %s (id: %s)", category, storyID), discordMaxDescriptionLength, discordTruncationSuffix)

	return discordWebhookPayload{
		Embeds: []discordEmbed{{
			Title:       title,
			Description: description,
			Color:       discordBlueColor,
			Footer:      discordEmbedFooter{Text: category},
			Timestamp:   time.Now().Format(time.RFC3339),
		}},
	}
}

func (d *DiscordBroadcaster) sendWebhookRequest(ctx context.Context, storyID, title, category string) error {
	payload := d.buildEmbedPayload(storyID, title, category)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Message: "discord rate limit exceeded", RetryAfter: extractDiscordRetryAfter(resp, body)}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ClientError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("discord api client error: %s", string(body))}
	}
	if resp.StatusCode >= 500 {
		return &ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("discord api server error: %s", string(body))}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

func extractDiscordRetryAfter(resp *http.Response, body []byte) time.Duration {
	var discordErr discordErrorResponse
	if err := json.Unmarshal(body, &discordErr); err == nil && discordErr.RetryAfter > 0 {
		return time.Duration(discordErr.RetryAfter * float64(time.Second))
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

const (
	discordMaxAttempts = 2
	discordBaseDelay   = 5 * time.Second
)

func (d *DiscordBroadcaster) sendWithRetry(ctx context.Context, requestID, storyID, title, category string) error {
	var lastErr error
	for attempt := 1; attempt <= discordMaxAttempts; attempt++ {
		_, err := d.breaker.Execute(func() (interface{}, error) {
			return nil, d.sendWebhookRequest(ctx, storyID, title, category)
		})

		if err == nil {
			d.logger.Info("discord broadcast sent", slog.String("request_id", requestID), slog.String("story_id", storyID), slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			d.logger.Warn("discord rate limit hit, backing off",
				slog.String("request_id", requestID), slog.String("story_id", storyID), slog.Duration("retry_after", rateLimitErr.RetryAfter))
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			d.logger.Error("discord broadcast failed with non-retryable error",
				slog.String("request_id", requestID), slog.String("story_id", storyID), slog.Any("error", err))
			return err
		}

		if attempt < discordMaxAttempts {
			delay := discordBaseDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}
	return fmt.Errorf("discord broadcast failed after %d attempts: %w", discordMaxAttempts, lastErr)
}

// Broadcast implements Broadcaster.
func (d *DiscordBroadcaster) Broadcast(ctx context.Context, storyID, title, category string) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if err := d.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	err := d.sendWithRetry(ctx, requestID, storyID, title, category)
	if err == nil {
		metrics.NotificationsSentTotal.WithLabelValues("discord").Inc()
	}
	return err
}
