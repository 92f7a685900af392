// Package clients provides shared client-side protection primitives:
// rate limiting and circuit breaking for calls to Google Cloud APIs.
package clients

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket limiter with usage statistics. The
// GCS destination uses it to keep object writes under API quota.
type RateLimiter struct {
	limiter *rate.Limiter

	allowedRequests int64
	blockedRequests int64
}

// RateLimiterStats provides statistics for monitoring.
type RateLimiterStats struct {
	Rate            float64 `json:"rate"`
	Burst           int     `json:"burst"`
	AllowedRequests int64   `json:"allowed_requests"`
	BlockedRequests int64   `json:"blocked_requests"`
}

// NewRateLimiter creates a rate limiter allowing ratePerSec operations
// per second with the given burst size.
func NewRateLimiter(ratePerSec int, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Allow reports whether an operation may proceed immediately, consuming
// a token if so.
func (rl *RateLimiter) Allow() bool {
	if rl.limiter.Allow() {
		atomic.AddInt64(&rl.allowedRequests, 1)
		return true
	}
	atomic.AddInt64(&rl.blockedRequests, 1)
	return false
}

// Wait blocks until an operation is allowed or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&rl.blockedRequests, 1)
		return err
	}
	atomic.AddInt64(&rl.allowedRequests, 1)
	return nil
}

// Limit returns the current rate limit in operations per second.
func (rl *RateLimiter) Limit() int {
	return int(rl.limiter.Limit())
}

// SetLimit updates the rate limit.
func (rl *RateLimiter) SetLimit(limit int) {
	rl.limiter.SetLimit(rate.Limit(limit))
}

// GetStats returns rate limiter statistics.
func (rl *RateLimiter) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Rate:            float64(rl.limiter.Limit()),
		Burst:           rl.limiter.Burst(),
		AllowedRequests: atomic.LoadInt64(&rl.allowedRequests),
		BlockedRequests: atomic.LoadInt64(&rl.blockedRequests),
	}
}
