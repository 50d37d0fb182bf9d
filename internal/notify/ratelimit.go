package notify

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter implements the token bucket algorithm, preventing webhook
// endpoints from being overwhelmed by a burst of breaking stories.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter sustaining requestsPerSecond with
// the given burst capacity.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Allow blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
