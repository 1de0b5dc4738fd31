package inference

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate. Zero disables limiting.
	RequestsPerSecond float64

	// BurstSize is the bucket capacity.
	BurstSize int

	// WaitTimeout bounds how long Wait blocks for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns defaults that stay well under the public
// free-tier quotas of the inference services.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstSize:         10,
		WaitTimeout:       10 * time.Second,
	}
}

// RateLimiter is a token bucket shared by every client that holds it.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64
	tokens      float64
	lastRefill  time.Time
	blockedTill time.Time
	waitTimeout time.Duration
}

// NewRateLimiter creates a RateLimiter. It returns nil when limiting is disabled;
// a nil *RateLimiter lets every request through.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}
	return &RateLimiter{
		maxTokens:   float64(cfg.BurstSize),
		refillRate:  cfg.RequestsPerSecond,
		tokens:      float64(cfg.BurstSize),
		lastRefill:  time.Now(),
		waitTimeout: cfg.WaitTimeout,
	}
}

// Wait blocks until a token is available, ctx is done, or the wait timeout
// would be exceeded.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	deadline := time.Now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.waitTimeout > 0 && time.Now().Add(wait).After(deadline) {
			return transportError("rate limit: no token within %s", rl.waitTimeout)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire returns (0, true) when a token was taken, otherwise the time to wait.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.blockedTill) {
		return rl.blockedTill.Sub(now), false
	}

	rl.refill(now)
	if rl.tokens < 1 {
		need := 1 - rl.tokens
		return time.Duration(need / rl.refillRate * float64(time.Second)), false
	}

	rl.tokens--
	return 0, true
}

// refill must be called with mu held.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// RecordRateLimitHit empties the bucket and blocks until retryAfter elapses.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	if until := time.Now().Add(retryAfter); until.After(rl.blockedTill) {
		rl.blockedTill = until
	}
}

// Available returns the current token count.
func (rl *RateLimiter) Available() float64 {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	return rl.tokens
}
