package ratelimit

import (
	"sync"
	"time"

	"github.com/calamars-bot/calamars-go/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name identifies this limiter for metrics (e.g., "chat", "nlu")
	Name string

	// Token bucket settings
	Burst      float64 // Maximum tokens (burst capacity)
	RefillRate float64 // Tokens refilled per second

	// Optional rolling 24h limit (0 = disabled)
	DailyLimit int

	// How often idle keys are forgotten (0 = never)
	CleanupPeriod time.Duration

	// Optional metrics reporter
	Metrics *metrics.Metrics
}

// KeyedLimiter tracks one token bucket, and optionally one daily window,
// per key (chat id).
type KeyedLimiter struct {
	mu      sync.RWMutex
	entries map[string]*keyedEntry
	config  KeyedConfig
	now     func() time.Time
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// keyedEntry's mutex makes the two-layer check-then-consume atomic.
type keyedEntry struct {
	mu     sync.Mutex
	bucket *Bucket
	daily  *SlidingWindow
}

// NewKeyedLimiter creates a per-key limiter. Call Stop when done.
//
//	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
//	    Name:          "chat",
//	    Burst:         15,
//	    RefillRate:    0.5,
//	    CleanupPeriod: 5 * time.Minute,
//	})
//	defer limiter.Stop()
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	kl := &KeyedLimiter{
		entries: make(map[string]*keyedEntry),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cfg.CleanupPeriod > 0 {
		kl.wg.Go(kl.cleanupLoop)
	}
	return kl
}

// Allow reports whether a request for key may proceed, consuming from both
// layers only when both have room. The empty key is never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	entry := kl.entry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.daily.check() || !entry.bucket.check() {
		kl.config.Metrics.RecordRateLimiterDrop(kl.config.Name)
		return false
	}
	entry.daily.consume()
	entry.bucket.consume()
	return true
}

func (kl *KeyedLimiter) entry(key string) *keyedEntry {
	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if ok {
		return entry
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if entry, ok = kl.entries[key]; ok {
		return entry
	}
	entry = &keyedEntry{
		bucket: newBucket(kl.config.Burst, kl.config.RefillRate, kl.now),
		daily:  newSlidingWindow(kl.config.DailyLimit, 24*time.Hour, kl.now),
	}
	kl.entries[key] = entry
	return entry
}

// Available returns the tokens left for key; unknown keys report Burst.
func (kl *KeyedLimiter) Available(key string) float64 {
	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.Burst
	}
	return entry.bucket.Available()
}

// DailyRemaining returns the rolling daily quota left for key, or -1 when
// the daily layer is disabled.
func (kl *KeyedLimiter) DailyRemaining(key string) int {
	if kl.config.DailyLimit <= 0 {
		return -1
	}
	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.DailyLimit
	}
	return entry.daily.Remaining()
}

// ActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

// Cleanup forgets keys whose bucket is full and whose daily window is empty,
// returning how many keys remain.
func (kl *KeyedLimiter) Cleanup() int {
	kl.mu.Lock()
	for key, entry := range kl.entries {
		if entry.bucket.IsFull() && entry.daily.Idle() {
			delete(kl.entries, key)
		}
	}
	active := len(kl.entries)
	kl.mu.Unlock()

	kl.config.Metrics.SetRateLimiterActiveKeys(kl.config.Name, active)
	return active
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.Cleanup()
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.stop.Do(func() { close(kl.stopCh) })
	kl.wg.Wait()
}
