package logger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MultiHandler sends each record to every enabled handler.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a MultiHandler, skipping nil handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	filtered := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &MultiHandler{handlers: filtered}
}

// Enabled reports whether any underlying handler is enabled for the given level.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle dispatches a clone of the record to each enabled handler.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs returns a new MultiHandler with the attributes applied to all handlers.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

// WithGroup returns a new MultiHandler with the group applied to all handlers.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h *MultiHandler) each(fn func(slog.Handler) slog.Handler) *MultiHandler {
	next := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		next = append(next, fn(handler))
	}
	return &MultiHandler{handlers: next}
}

const (
	defaultAsyncBufferSize   = 1024
	defaultAsyncFlushTimeout = 5 * time.Second
)

// AsyncOptions configures the async log pipeline.
type AsyncOptions struct {
	BufferSize   int
	FlushTimeout time.Duration
}

type queuedRecord struct {
	ctx     context.Context
	record  slog.Record
	handler slog.Handler
}

// asyncQueue is shared by an AsyncHandler and every handler derived from it.
type asyncQueue struct {
	mu           sync.RWMutex // guards ch against send after close
	ch           chan queuedRecord
	flushTimeout time.Duration
	closed       atomic.Bool
	dropped      atomic.Uint64
	wg           sync.WaitGroup
}

func newAsyncQueue(opts AsyncOptions) *asyncQueue {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultAsyncBufferSize
	}
	flush := opts.FlushTimeout
	if flush <= 0 {
		flush = defaultAsyncFlushTimeout
	}

	q := &asyncQueue{
		ch:           make(chan queuedRecord, size),
		flushTimeout: flush,
	}
	q.wg.Go(func() {
		for rec := range q.ch {
			_ = rec.handler.Handle(rec.ctx, rec.record)
		}
	})
	return q
}

func (q *asyncQueue) push(rec queuedRecord) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed.Load() {
		return
	}
	select {
	case q.ch <- rec:
	default:
		q.dropped.Add(1)
	}
}

func (q *asyncQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed.Swap(true) {
		q.mu.Unlock()
		return nil
	}
	close(q.ch)
	q.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.flushTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AsyncHandler hands records to a background goroutine so that remote log
// shipping never blocks request paths. Records are dropped when the buffer
// is full.
type AsyncHandler struct {
	queue   *asyncQueue
	handler slog.Handler
}

// NewAsyncHandler wraps handler with a fresh queue.
func NewAsyncHandler(handler slog.Handler, opts AsyncOptions) *AsyncHandler {
	return &AsyncHandler{queue: newAsyncQueue(opts), handler: handler}
}

// Enabled reports whether the underlying handler is enabled for the given level.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle enqueues the record and returns immediately.
func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.handler.Enabled(ctx, r.Level) {
		return nil
	}
	h.queue.push(queuedRecord{ctx: ctx, record: r.Clone(), handler: h.handler})
	return nil
}

// WithAttrs returns a handler sharing the same queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{queue: h.queue, handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a handler sharing the same queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{queue: h.queue, handler: h.handler.WithGroup(name)}
}

// Dropped returns how many records were discarded because the buffer was full.
func (h *AsyncHandler) Dropped() uint64 {
	return h.queue.dropped.Load()
}

// Shutdown stops accepting records and waits for queued ones to be handled.
func (h *AsyncHandler) Shutdown(ctx context.Context) error {
	if h == nil || h.queue == nil {
		return nil
	}
	return h.queue.close(ctx)
}
