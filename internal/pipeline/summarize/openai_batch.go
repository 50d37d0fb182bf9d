package summarize

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"newsreel/internal/resilience/circuitbreaker"
	"newsreel/internal/resilience/retry"
)

// openAIPricing is the per-million-token USD rate for the batch model.
// OpenAI's batch API bills at roughly half the synchronous rate, which is
// the ~50% cost reduction §4.5 cites as the batch path's rationale.
var openAIBatchPricing = struct {
	PromptPerMTok     float64
	CompletionPerMTok float64
}{PromptPerMTok: 0.075, CompletionPerMTok: 0.30}

// OpenAIBatchConfig configures the batch summarization provider.
type OpenAIBatchConfig struct {
	Model            string
	MaxTokens        int
	CompletionWindow string
}

// DefaultOpenAIBatchConfig returns the batch provider's defaults.
func DefaultOpenAIBatchConfig() OpenAIBatchConfig {
	return OpenAIBatchConfig{
		Model:            openai.GPT4oMini,
		MaxTokens:        1024,
		CompletionWindow: "24h",
	}
}

// BatchProvider is the asynchronous counterpart to Provider: Submit queues
// a set of requests for processing and returns an opaque batch id; Poll
// reports whether the batch has finished and, if so, the per-cluster
// results keyed by SummaryRequest.ClusterID (§4.5 batch path).
type BatchProvider interface {
	Submit(ctx context.Context, reqs []SummaryRequest) (batchID string, err error)
	Poll(ctx context.Context, batchID string) (results map[string]SummaryResult, done bool, err error)
}

// OpenAIBatchProvider implements BatchProvider over OpenAI's batch API: a
// JSONL file of per-cluster chat-completion requests, submitted as one
// batch job and polled to completion (§4.5 "submitted to LLM
// provider's batch API").
type OpenAIBatchProvider struct {
	client         *openai.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	config         OpenAIBatchConfig
}

// NewOpenAIBatchProvider creates an OpenAI-backed BatchProvider.
func NewOpenAIBatchProvider(apiKey string, config OpenAIBatchConfig) *OpenAIBatchProvider {
	return &OpenAIBatchProvider{
		client:         openai.NewClient(apiKey),
		circuitBreaker: circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
		config:         config,
	}
}

// batchChatRequest is the per-line shape OpenAI's batch endpoint expects:
// a custom_id the output line echoes back, plus a standard chat-completion
// request body.
type batchChatRequest struct {
	CustomID string                              `json:"custom_id"`
	Method   string                              `json:"method"`
	URL      string                              `json:"url"`
	Body     openai.ChatCompletionRequest        `json:"body"`
}

type batchChatResultLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		Body openai.ChatCompletionResponse `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Submit uploads a JSONL batch input file and kicks off a batch job
// scoped to the chat-completions endpoint.
func (p *OpenAIBatchProvider) Submit(ctx context.Context, reqs []SummaryRequest) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range reqs {
		line := batchChatRequest{
			CustomID: req.ClusterID,
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body: openai.ChatCompletionRequest{
				Model:     p.config.Model,
				MaxTokens: p.config.MaxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
				},
			},
		}
		if err := enc.Encode(line); err != nil {
			return "", fmt.Errorf("summarize: encode batch line for cluster %s: %w", req.ClusterID, err)
		}
	}

	cbResult, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		file, err := p.client.CreateFileBytes(ctx, openai.FileBytesRequest{
			Name:    "summaries.jsonl",
			Bytes:   buf.Bytes(),
			Purpose: openai.PurposeBatch,
		})
		if err != nil {
			return "", fmt.Errorf("upload batch input file: %w", err)
		}
		batch, err := p.client.CreateBatch(ctx, openai.CreateBatchRequest{
			InputFileID:      file.ID,
			Endpoint:         openai.BatchEndpointChatCompletions,
			CompletionWindow: p.config.CompletionWindow,
		})
		if err != nil {
			return "", fmt.Errorf("create batch: %w", err)
		}
		return batch.ID, nil
	})
	if err != nil {
		return "", err
	}
	batchID := cbResult.(string)
	slog.Info("summarize: batch submitted", slog.String("batch_id", batchID), slog.Int("request_count", len(reqs)))
	return batchID, nil
}

// Poll checks a previously submitted batch's status and, once the provider
// marks it completed, downloads and parses the output file into per-cluster
// results.
func (p *OpenAIBatchProvider) Poll(ctx context.Context, batchID string) (map[string]SummaryResult, bool, error) {
	var batch openai.BatchResponse
	retryErr := retry.WithBackoff(ctx, p.retryConfig, func() error {
		cbResult, err := p.circuitBreaker.Execute(func() (interface{}, error) {
			return p.client.RetrieveBatch(ctx, batchID)
		})
		if err != nil {
			return err
		}
		batch = cbResult.(openai.BatchResponse)
		return nil
	})
	if retryErr != nil {
		return nil, false, fmt.Errorf("summarize: retrieve batch %s: %w", batchID, retryErr)
	}

	switch batch.Status {
	case "completed":
	case "failed", "expired", "cancelled":
		return nil, true, fmt.Errorf("summarize: batch %s ended with status %s", batchID, batch.Status)
	default:
		return nil, false, nil
	}

	if batch.OutputFileID == "" {
		return map[string]SummaryResult{}, true, nil
	}
	content, err := p.client.GetFileContent(ctx, batch.OutputFileID)
	if err != nil {
		return nil, false, fmt.Errorf("summarize: fetch batch output file: %w", err)
	}
	defer content.Close()

	results, err := parseBatchOutput(content, p.config.Model)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func parseBatchOutput(r io.Reader, modelID string) (map[string]SummaryResult, error) {
	results := make(map[string]SummaryResult)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line batchChatResultLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("summarize: parse batch output line: %w", err)
		}
		if line.Error != nil || line.Response == nil || len(line.Response.Body.Choices) == 0 {
			continue
		}
		text := line.Response.Body.Choices[0].Message.Content
		usage := line.Response.Body.Usage
		cost := (float64(usage.PromptTokens)/1_000_000)*openAIBatchPricing.PromptPerMTok +
			(float64(usage.CompletionTokens)/1_000_000)*openAIBatchPricing.CompletionPerMTok
		results[line.CustomID] = SummaryResult{
			Text:             text,
			ModelID:          modelID,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			CostUSD:          cost,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("summarize: scan batch output: %w", err)
	}
	return results, nil
}
