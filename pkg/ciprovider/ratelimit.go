package ciprovider

import (
	"context"

	"golang.org/x/time/rate"
)

// NewFixedRateLimiter builds a limiter pacing at most n requests per
// second with a burst of 1, the "simple per-request sleep" discipline
// spec §4.1 calls for on the non-GitHub adapters.
func NewFixedRateLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// WaitFixedRateLimiter blocks until the limiter admits the next request,
// or ctx is done.
func WaitFixedRateLimiter(ctx context.Context, limiter *rate.Limiter) {
	_ = limiter.Wait(ctx)
}
