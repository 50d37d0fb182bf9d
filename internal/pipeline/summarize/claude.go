package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"newsreel/internal/resilience/circuitbreaker"
	"newsreel/internal/resilience/retry"
)

// claudePricing is the per-million-token USD rate for the configured
// model, used to compute SummaryResult.CostUSD (§4.5 cost controls).
// Rates are for claude-sonnet-4-5; cache-read tokens are billed at a
// fraction of the input rate.
type claudePricing struct {
	InputPerMTok      float64
	CachedPerMTok     float64
	CompletionPerMTok float64
}

var defaultClaudePricing = claudePricing{
	InputPerMTok:      3.00,
	CachedPerMTok:     0.30,
	CompletionPerMTok: 15.00,
}

// ClaudeConfig configures the real-time summarization provider.
type ClaudeConfig struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultClaudeConfig returns the baseline Claude request defaults,
// generalized from a fixed character limit to the documented word-count target.
func DefaultClaudeConfig() ClaudeConfig {
	return ClaudeConfig{
		Model:     string(anthropic.ModelClaudeSonnet4_5_20250929),
		MaxTokens: 1024,
		Timeout:   60 * time.Second,
	}
}

// ClaudeProvider implements Provider using Anthropic's Claude API for the
// real-time summarization path (§4.5).
type ClaudeProvider struct {
	client         anthropic.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	config         ClaudeConfig
	pricing        claudePricing
}

// NewClaudeProvider creates a Claude-backed Provider with the shared
// circuit breaker and retry profiles used for the AI-API class of dependency.
func NewClaudeProvider(apiKey string, config ClaudeConfig) *ClaudeProvider {
	return &ClaudeProvider{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		circuitBreaker: circuitbreaker.New(circuitbreaker.ClaudeAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
		config:         config,
		pricing:        defaultClaudePricing,
	}
}

// Summarize synthesizes req's sources into one factual paragraph, retrying
// through the circuit breaker and falling back to a deterministic,
// titles-only summary on refusal or irrecoverable error (§4.5).
func (c *ClaudeProvider) Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var result SummaryResult
	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		cbResult, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doSummarize(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("claude api circuit breaker open, request rejected",
					slog.String("service", "claude-api"),
					slog.String("state", c.circuitBreaker.State().String()))
				return fmt.Errorf("claude api unavailable: circuit breaker open")
			}
			return err
		}
		result = cbResult.(SummaryResult)
		return nil
	})

	if retryErr != nil {
		slog.Warn("claude summarize failed after retries, falling back to titles-only summary",
			slog.String("cluster_id", req.ClusterID), slog.Any("error", retryErr))
		return fallbackSummary(req), nil
	}
	return result, nil
}

// claudeCost applies pricing to one call's token usage. cachedTokens is a
// subset of promptTokens billed at the discounted cache-read rate rather
// than the full input rate.
func claudeCost(pricing claudePricing, promptTokens, cachedTokens, completionTokens int) float64 {
	return (float64(promptTokens-cachedTokens)/1_000_000)*pricing.InputPerMTok +
		(float64(cachedTokens)/1_000_000)*pricing.CachedPerMTok +
		(float64(completionTokens)/1_000_000)*pricing.CompletionPerMTok
}

func (c *ClaudeProvider) doSummarize(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	requestID := uuid.New().String()
	prompt := buildPrompt(req)

	slog.InfoContext(ctx, "starting summarization",
		slog.String("request_id", requestID),
		slog.String("cluster_id", req.ClusterID),
		slog.Int("source_count", len(req.Sources)))

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	duration := time.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "summarization failed",
			slog.String("request_id", requestID), slog.Duration("duration", duration), slog.Any("error", err))
		return SummaryResult{}, fmt.Errorf("claude api error: %w", err)
	}
	if len(message.Content) == 0 {
		return SummaryResult{}, fmt.Errorf("claude api returned empty response")
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return SummaryResult{}, fmt.Errorf("claude api returned unexpected response type")
	}

	if isRefusal(textBlock.Text) {
		slog.Info("claude summary detected as refusal, using fallback",
			slog.String("request_id", requestID), slog.String("cluster_id", req.ClusterID))
		return fallbackSummary(req), nil
	}

	promptTokens := int(message.Usage.InputTokens)
	cachedTokens := int(message.Usage.CacheReadInputTokens)
	completionTokens := int(message.Usage.OutputTokens)
	cost := claudeCost(c.pricing, promptTokens, cachedTokens, completionTokens)

	slog.InfoContext(ctx, "summarization completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("prompt_tokens", promptTokens),
		slog.Int("completion_tokens", completionTokens))

	return SummaryResult{
		Text:             enforceWordTarget(textBlock.Text),
		ModelID:          c.config.Model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CachedTokens:     cachedTokens,
		CostUSD:          cost,
	}, nil
}
