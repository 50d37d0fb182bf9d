package summarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaudeCost_AppliesCachedDiscountToPromptTokens(t *testing.T) {
	pricing := claudePricing{InputPerMTok: 3.00, CachedPerMTok: 0.30, CompletionPerMTok: 15.00}

	cost := claudeCost(pricing, 1_000_000, 0, 0)
	assert.InDelta(t, 3.00, cost, 1e-9)

	cachedCost := claudeCost(pricing, 1_000_000, 1_000_000, 0)
	assert.InDelta(t, 0.30, cachedCost, 1e-9, "a fully cached prompt should bill at the cache rate, not the input rate")
}

func TestClaudeCost_IncludesCompletionTokens(t *testing.T) {
	pricing := claudePricing{InputPerMTok: 3.00, CachedPerMTok: 0.30, CompletionPerMTok: 15.00}

	cost := claudeCost(pricing, 0, 0, 1_000_000)
	assert.InDelta(t, 15.00, cost, 1e-9)
}

func TestClaudeCost_ZeroUsageIsZeroCost(t *testing.T) {
	cost := claudeCost(defaultClaudePricing, 0, 0, 0)
	assert.Equal(t, 0.0, cost)
}
