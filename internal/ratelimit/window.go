package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow approximates a rolling window limit with two fixed windows:
//
//	effective = current + previous * (remaining part of current window / window)
//
// A nil *SlidingWindow is disabled and allows everything.
type SlidingWindow struct {
	mu          sync.Mutex
	curr        int
	prev        int
	start       time.Time
	window      time.Duration
	maxRequests int
	now         func() time.Time
}

// NewSlidingWindow returns nil when maxRequests <= 0.
func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	return newSlidingWindow(maxRequests, window, time.Now)
}

func newSlidingWindow(maxRequests int, window time.Duration, now func() time.Time) *SlidingWindow {
	if maxRequests <= 0 || window <= 0 {
		return nil
	}
	return &SlidingWindow{
		start:       now(),
		window:      window,
		maxRequests: maxRequests,
		now:         now,
	}
}

// Allow counts the request if the window has room.
func (w *SlidingWindow) Allow() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.effective() >= float64(w.maxRequests) {
		return false
	}
	w.curr++
	return true
}

func (w *SlidingWindow) check() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.effective() < float64(w.maxRequests)
}

func (w *SlidingWindow) consume() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.effective() < float64(w.maxRequests) {
		w.curr++
	}
}

// Remaining returns the approximate number of requests left, or -1 when disabled.
func (w *SlidingWindow) Remaining() int {
	if w == nil {
		return -1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return max(0, int(float64(w.maxRequests)-w.effective()))
}

// Idle reports whether nothing has been counted in the tracked windows.
func (w *SlidingWindow) Idle() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.effective() == 0
}

// effective rotates expired windows and returns the weighted count.
// Must be called with mu held.
func (w *SlidingWindow) effective() float64 {
	elapsed := w.now().Sub(w.start)
	if elapsed >= w.window {
		passed := int(elapsed / w.window)
		if passed == 1 {
			w.prev = w.curr
		} else {
			w.prev = 0
		}
		w.curr = 0
		w.start = w.start.Add(time.Duration(passed) * w.window)
		elapsed = w.now().Sub(w.start)
	}

	overlap := float64(w.window-elapsed) / float64(w.window)
	overlap = min(1, max(0, overlap))
	return float64(w.curr) + float64(w.prev)*overlap
}
