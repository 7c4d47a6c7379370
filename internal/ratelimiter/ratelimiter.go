package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter admits events (accepted connections) at a sustained rate with
// a bounded burst, using a token bucket from golang.org/x/time/rate.
//
// A nil *RateLimiter admits everything, so callers can keep an unset limiter
// in their struct instead of branching on configuration.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter admitting requestsPerSecond events per second.
//
// Special cases:
//   - requestsPerSecond = 0: returns nil (no limiting)
//   - burst = 0: burst defaults to requestsPerSecond, so one second worth of
//     events can arrive at once
//
// Example:
//
//	// 50 connections/s sustained, bursts of 100
//	limiter := New(50, 100)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether one event may proceed now, consuming a token if so.
// It never blocks.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket. For a nil
// limiter it returns 0. Intended for logs and debugging only.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}
