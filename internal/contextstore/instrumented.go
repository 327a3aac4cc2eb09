package contextstore

import (
	"context"
	"time"

	"github.com/calamars-bot/calamars-go/internal/metrics"
)

// Instrumented wraps a Store and records per-operation metrics.
type Instrumented struct {
	store   Store
	backend string
	metrics *metrics.Metrics
}

// WithMetrics returns store wrapped with operation metrics labelled backend.
// A nil m returns store unchanged.
func WithMetrics(store Store, backend string, m *metrics.Metrics) Store {
	if m == nil {
		return store
	}
	return &Instrumented{store: store, backend: backend, metrics: m}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.RecordStoreOp(s.backend, op, err, time.Since(start).Seconds())
}

func (s *Instrumented) Get(ctx context.Context, id string) (Record, error) {
	start := time.Now()
	rec, err := s.store.Get(ctx, id)
	s.observe("get", start, err)
	return rec, err
}

func (s *Instrumented) Set(ctx context.Context, id string, rec Record) (string, error) {
	start := time.Now()
	out, err := s.store.Set(ctx, id, rec)
	s.observe("set", start, err)
	return out, err
}

func (s *Instrumented) Remove(ctx context.Context, id string) (string, error) {
	start := time.Now()
	out, err := s.store.Remove(ctx, id)
	s.observe("remove", start, err)
	return out, err
}

func (s *Instrumented) GetProp(ctx context.Context, id, key string) (any, error) {
	start := time.Now()
	out, err := s.store.GetProp(ctx, id, key)
	s.observe("get_prop", start, err)
	return out, err
}

func (s *Instrumented) SetProp(ctx context.Context, id, key string, value any) (Record, error) {
	start := time.Now()
	out, err := s.store.SetProp(ctx, id, key, value)
	s.observe("set_prop", start, err)
	return out, err
}

func (s *Instrumented) RemoveProp(ctx context.Context, id, key string) (Record, error) {
	start := time.Now()
	out, err := s.store.RemoveProp(ctx, id, key)
	s.observe("remove_prop", start, err)
	return out, err
}

func (s *Instrumented) FindByProp(ctx context.Context, key string, value any) ([]Record, error) {
	start := time.Now()
	out, err := s.store.FindByProp(ctx, key, value)
	s.observe("find_by_prop", start, err)
	return out, err
}

func (s *Instrumented) Close() error {
	return s.store.Close()
}

// Ping forwards to the wrapped store when it supports health checks.
func (s *Instrumented) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
