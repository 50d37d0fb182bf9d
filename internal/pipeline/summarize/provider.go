// Package summarize implements the dual-path AI summarizer: a
// real-time path triggered off the story-cluster change stream, and a
// periodic batch path for clusters the real-time path never reached or
// whose summary has gone stale (§4.5).
package summarize

import (
	"context"
	"sort"
	"strings"
)

// SourceExcerpt is one source article's contribution to a cluster's
// summarization prompt, in the ordered (source_label, title, body) tuple
// shape §4.5 requires.
type SourceExcerpt struct {
	SourceLabel string
	SourceTier  int
	Title       string
	Body        string
}

// SummaryRequest bundles a cluster's metadata and linked source excerpts
// into everything a provider needs to synthesize one summary.
type SummaryRequest struct {
	ClusterID          string
	ClusterTitle       string
	Category           string
	VerificationLevel  int
	Sources            []SourceExcerpt
}

// SummaryResult is a provider's synthesis plus the cost-accounting fields
// §4.5 requires be recorded alongside it.
type SummaryResult struct {
	Text             string
	ModelID          string
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	CostUSD          float64
}

// FallbackModelID marks a summary produced by the deterministic title-only
// fallback rather than an LLM call (§4.5, on refusal/error).
const FallbackModelID = "fallback"

// Provider synthesizes a factual, multi-source summary for one cluster
// (the real-time path). Batch providers implement a separate, asynchronous
// contract — see BatchProvider.
type Provider interface {
	Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error)
}

// refusalMarkers are fixed substrings an LLM response is checked against
// to detect a refusal or an "I don't have enough information" non-answer
// (§4.5: "refusal/error detection via fixed string-match list").
var refusalMarkers = []string{
	"cannot create",
	"can't create",
	"cannot provide",
	"unable to provide",
	"insufficient information",
	"not enough information",
	"based on the provided information",
	"i don't have enough",
	"i do not have enough",
}

// isRefusal reports whether text matches one of the known refusal/
// non-answer patterns, case-insensitively.
func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// buildPrompt renders the ordered source tuples and cluster metadata into
// the synthesis prompt every provider sends verbatim. Sources are weighted
// toward higher tiers (tier 1 listed first) but never exclude lower tiers —
// §4.5 "weight higher-tier sources but not exclusively".
func buildPrompt(req SummaryRequest) string {
	sources := make([]SourceExcerpt, len(req.Sources))
	copy(sources, req.Sources)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].SourceTier < sources[j].SourceTier
	})

	var b strings.Builder
	b.WriteString("You are a factual news summarizer. Using only the source excerpts below, ")
	b.WriteString("write a single neutral paragraph synthesizing what is confirmed across them. ")
	b.WriteString("Do not speculate beyond what the sources state. Target 100-200 words. ")
	b.WriteString("If the sources do not contain enough information to summarize, say so plainly.\n\n")
	b.WriteString("Story: ")
	b.WriteString(req.ClusterTitle)
	b.WriteString("\n\n")
	for i, s := range sources {
		b.WriteString("Source ")
		b.WriteString(itoa(i + 1))
		b.WriteString(" (")
		b.WriteString(s.SourceLabel)
		b.WriteString("): ")
		b.WriteString(s.Title)
		b.WriteString("\n")
		b.WriteString(truncateWords(s.Body, 300))
		b.WriteString("\n\n")
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// truncateWords caps body text at maxWords words, so a single long source
// article can't crowd out the rest of the prompt.
func truncateWords(body string, maxWords int) string {
	fields := strings.Fields(body)
	if len(fields) <= maxWords {
		return body
	}
	return strings.Join(fields[:maxWords], " ") + "..."
}

// fallbackSummary deterministically derives a summary from source titles
// alone, used whenever a provider call errors or the response is detected
// as a refusal (§4.5). It always reports FallbackModelID and zero
// cost, since no model call produced it.
func fallbackSummary(req SummaryRequest) SummaryResult {
	titles := make([]string, 0, len(req.Sources))
	seen := make(map[string]struct{}, len(req.Sources))
	for _, s := range req.Sources {
		t := strings.TrimSpace(s.Title)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		titles = append(titles, t)
	}
	var text string
	switch {
	case len(titles) == 0:
		text = req.ClusterTitle
	case len(titles) == 1:
		text = titles[0]
	default:
		text = strings.Join(titles[:len(titles)-1], "; ") + "; and " + titles[len(titles)-1]
	}
	return SummaryResult{Text: text, ModelID: FallbackModelID}
}

// enforceWordTarget truncates an over-long synthesis to §4.5's 100-200
// word target ("truncate if longer"); summaries shorter than the target are
// left as-is rather than padded.
func enforceWordTarget(text string) string {
	const maxWords = 200
	fields := strings.Fields(text)
	if len(fields) <= maxWords {
		return text
	}
	return strings.Join(fields[:maxWords], " ") + "..."
}
