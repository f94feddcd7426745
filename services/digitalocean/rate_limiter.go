package digitalocean

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter paces inference calls across every session's generation
// stages with a token bucket. Callers reserve a slot under the lock and then
// sleep outside it, so waiters are served in arrival order.
type RateLimiter struct {
	mu sync.Mutex

	burst       float64
	perSecond   float64
	minInterval time.Duration

	tokens    float64
	updatedAt time.Time
	// no slot is handed out before this, set after a 429
	frozenUntil time.Time
	// earliest start for the next slot when minInterval is set
	nextSlot time.Time
}

type RateLimiterConfig struct {
	MaxTokens   float64 // burst size
	RefillRate  float64 // tokens per second
	MinInterval time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxTokens:   3,
		RefillRate:  0.5,
		MinInterval: 250 * time.Millisecond,
	}
}

// RateLimiterFromRPM allows perMinute requests with the given burst. Zero
// values keep the defaults.
func RateLimiterFromRPM(perMinute, burst int) RateLimiterConfig {
	cfg := DefaultRateLimiterConfig()
	if perMinute > 0 {
		cfg.RefillRate = float64(perMinute) / 60
	}
	if burst > 0 {
		cfg.MaxTokens = float64(burst)
	}
	return cfg
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RefillRate <= 0 {
		config.RefillRate = def.RefillRate
	}
	if config.MaxTokens < 1 {
		config.MaxTokens = def.MaxTokens
	}
	return &RateLimiter{
		burst:       config.MaxTokens,
		perSecond:   config.RefillRate,
		minInterval: config.MinInterval,
		tokens:      config.MaxTokens,
		updatedAt:   time.Now(),
	}
}

// Wait blocks until the caller may send one request. A cancelled context
// returns its error and gives the slot back.
func (r *RateLimiter) Wait(ctx context.Context) error {
	delay := r.reserve(time.Now())
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.release()
		return ctx.Err()
	}
}

// TryAcquire takes a token only if one is available right now
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.advance(now)
	if r.tokens < 1 || now.Before(r.frozenUntil) || now.Before(r.nextSlot) {
		return false
	}
	r.tokens--
	r.nextSlot = now.Add(r.minInterval)
	return true
}

// Penalize stops handing out slots for d and empties the bucket. Used when
// the provider answers 429 despite the local pacing.
func (r *RateLimiter) Penalize(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.advance(now)
	r.tokens = math.Min(r.tokens, 0)
	if until := now.Add(d); until.After(r.frozenUntil) {
		r.frozenUntil = until
	}
}

// AvailableTokens is the current bucket level; negative while callers are
// queued
func (r *RateLimiter) AvailableTokens() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance(time.Now())
	return r.tokens
}

// reserve takes a token, possibly going into debt, and returns how long
// the caller has to wait for it
func (r *RateLimiter) reserve(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance(now)
	r.tokens--

	start := now
	if r.tokens < 0 {
		start = now.Add(time.Duration(-r.tokens / r.perSecond * float64(time.Second)))
	}
	if start.Before(r.frozenUntil) {
		start = r.frozenUntil
	}
	if start.Before(r.nextSlot) {
		start = r.nextSlot
	}
	r.nextSlot = start.Add(r.minInterval)
	return start.Sub(now)
}

func (r *RateLimiter) release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance(time.Now())
	r.tokens = math.Min(r.tokens+1, r.burst)
}

func (r *RateLimiter) advance(now time.Time) {
	if elapsed := now.Sub(r.updatedAt).Seconds(); elapsed > 0 {
		r.tokens = math.Min(r.tokens+elapsed*r.perSecond, r.burst)
		r.updatedAt = now
	}
}
