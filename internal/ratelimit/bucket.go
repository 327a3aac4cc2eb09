// Package ratelimit provides token bucket and sliding window limiters, plus a
// keyed limiter that tracks one bucket per chat.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket implements a token bucket rate limiter.
// It is safe for concurrent use.
//
// Tokens are added at refillRate per second up to burst. Each request
// consumes one token.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// New creates a full bucket.
//
//	// 15 messages burst, one new message every two seconds
//	b := ratelimit.New(15, 0.5)
func New(burst, refillRate float64) *Bucket {
	return newBucket(burst, refillRate, time.Now)
}

func newBucket(burst, refillRate float64, now func() time.Time) *Bucket {
	return &Bucket{
		tokens:     burst,
		burst:      burst,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed*b.refillRate)
	}
	b.lastRefill = now
}

// Allow consumes a token if one is available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// check and consume let KeyedLimiter combine the bucket with a daily window
// under one entry lock.
func (b *Bucket) check() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens >= 1
}

func (b *Bucket) consume() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
	}
}

// Wait blocks until a token is available or the context is canceled.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		if b.refillRate <= 0 {
			b.mu.Unlock()
			<-ctx.Done()
			return ctx.Err()
		}
		wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current number of tokens.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// IsFull reports whether the bucket has refilled completely, meaning the
// key it belongs to has been idle long enough to forget.
func (b *Bucket) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens >= b.burst
}

// Reset refills the bucket.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = b.burst
	b.lastRefill = b.now()
}
