package contextstore

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps records in process memory. Records are deep-copied on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[id]; ok {
		return rec.Clone(), nil
	}
	return Record{}, nil
}

func (s *MemoryStore) Set(_ context.Context, id string, rec Record) (string, error) {
	if id == "" || len(rec) == 0 {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = withID(id, rec).Clone()
	return id, nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return "", nil
	}
	delete(s.records, id)
	return id, nil
}

func (s *MemoryStore) GetProp(_ context.Context, id, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return Record{key: rec[key]}.Clone()[key], nil
}

func (s *MemoryStore) SetProp(_ context.Context, id, key string, value any) (Record, error) {
	if id == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		rec = Record{IDKey: id}
	}
	if writableKey(key) {
		rec = withID(id, rec)
		rec[key] = value
		rec = rec.Clone()
		s.records[id] = rec
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) RemoveProp(_ context.Context, id, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	if writableKey(key) {
		rec = withID(id, rec)
		delete(rec, key)
		s.records[id] = rec
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) FindByProp(_ context.Context, key string, value any) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if matchProp(rec, key, value) {
			out = append(out, rec.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func sortByID(recs []Record) {
	slices.SortFunc(recs, func(a, b Record) int { return strings.Compare(a.ID(), b.ID()) })
}
