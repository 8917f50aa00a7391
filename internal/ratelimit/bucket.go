// Package ratelimit provides the token-bucket limiter used for ingress
// admission and execution throttling.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Configuration errors returned by New and Configure.
var (
	ErrRateNotPositive     = errors.New("rate_per_second must be positive")
	ErrCapacityNotPositive = errors.New("capacity must be positive")
)

// fallbackWait bounds the retry sleep if the configured rate is somehow
// non-positive. Configure rejects such rates, so this is unreachable in
// normal operation.
const fallbackWait = 100 * time.Millisecond

// Clock provides the current time. It can be replaced for deterministic
// tests.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// TokenBucket is a lazily refilled token bucket. Allow consumes a token
// without blocking; WaitForToken blocks until one is available.
//
// Configure replaces rate and capacity but does not retroactively clamp the
// current token count; clamping happens on the next refill.
type TokenBucket struct {
	mu        sync.Mutex
	rate      float64 // tokens added per second
	capacity  int
	tokens    float64
	updatedAt time.Time
	clock     Clock
}

// New creates a full bucket with the given refill rate and burst capacity.
func New(ratePerSecond float64, capacity int) (*TokenBucket, error) {
	return NewWithClock(ratePerSecond, capacity, SystemClock{})
}

// NewWithClock creates a full bucket using the provided clock.
func NewWithClock(ratePerSecond float64, capacity int, clock Clock) (*TokenBucket, error) {
	if ratePerSecond <= 0 {
		return nil, ErrRateNotPositive
	}
	if capacity <= 0 {
		return nil, ErrCapacityNotPositive
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenBucket{
		rate:      ratePerSecond,
		capacity:  capacity,
		tokens:    float64(capacity),
		updatedAt: clock.Now(),
		clock:     clock,
	}, nil
}

// Configure replaces the limiter parameters. It rejects non-positive values
// without mutating state.
func (b *TokenBucket) Configure(ratePerSecond float64, capacity int) error {
	if ratePerSecond <= 0 {
		return ErrRateNotPositive
	}
	if capacity <= 0 {
		return ErrCapacityNotPositive
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate = ratePerSecond
	b.capacity = capacity
	return nil
}

// Allow attempts to consume a token without blocking.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

// WaitForToken blocks until a token is available and consumes it, or until
// the context is cancelled. The deficit is re-checked under the lock on
// every iteration so concurrent waiters do not double-consume.
func (b *TokenBucket) WaitForToken(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1.0 {
			b.tokens -= 1.0
			b.mu.Unlock()
			return nil
		}
		deficit := 1.0 - b.tokens
		rate := b.rate
		b.mu.Unlock()

		wait := fallbackWait
		if rate > 0 {
			wait = time.Duration(deficit / rate * float64(time.Second))
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Tokens refills and returns the current token count. Exposed for metrics.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// Rate returns the configured refill rate.
func (b *TokenBucket) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

// Capacity returns the configured burst capacity.
func (b *TokenBucket) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// refill credits tokens for the elapsed time and advances the timestamp.
// Caller must hold b.mu.
func (b *TokenBucket) refill() {
	now := b.clock.Now()
	elapsed := now.Sub(b.updatedAt).Seconds()
	if elapsed <= 0 {
		return
	}
	tokens := b.tokens + elapsed*b.rate
	if max := float64(b.capacity); tokens > max {
		tokens = max
	}
	b.tokens = tokens
	b.updatedAt = now
}
