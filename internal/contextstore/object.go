package contextstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/calamars-bot/calamars-go/internal/config"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/s3client"
)

// ObjectClient is the subset of s3client.Client used by ObjectStore.
type ObjectClient interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) (bool, string, error)
	PutIfMatch(ctx context.Context, key string, data []byte, etag, contentType string) (bool, string, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// ObjectStoreConfig configures an ObjectStore.
type ObjectStoreConfig struct {
	Prefix   string // Key prefix, e.g. "contexts/"
	Compress bool   // Store records as zstd-compressed JSON (.json.zst)

	// MaxAttempts bounds the conditional-write loop of SetProp/RemoveProp
	// under concurrent writers (default 5).
	MaxAttempts int

	// FetchConcurrency bounds parallel downloads in FindByProp (default 8).
	FetchConcurrency int

	// FetchTimeout bounds one shared download (default config.ObjectFetch).
	FetchTimeout time.Duration

	Metrics *metrics.Metrics
}

// ObjectStore keeps one object per chat in S3-compatible storage.
// Property updates use ETag conditional writes so concurrent writers never
// lose each other's changes.
type ObjectStore struct {
	client ObjectClient
	cfg    ObjectStoreConfig
	ext    string
	sf     singleflight.Group
}

// NewObjectStore creates a store over client.
func NewObjectStore(client ObjectClient, cfg ObjectStoreConfig) *ObjectStore {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = config.ObjectFetch
	}
	ext := ".json"
	if cfg.Compress {
		ext = ".json.zst"
	}
	return &ObjectStore{client: client, cfg: cfg, ext: ext}
}

func (s *ObjectStore) key(id string) string {
	return s.cfg.Prefix + url.PathEscape(id) + s.ext
}

func (s *ObjectStore) contentType() string {
	if s.cfg.Compress {
		return "application/zstd"
	}
	return "application/json"
}

func (s *ObjectStore) encode(rec Record) ([]byte, error) {
	data, err := encodeRecord(rec)
	if err != nil || !s.cfg.Compress {
		return data, err
	}
	return s3client.Compress(data)
}

func (s *ObjectStore) decode(data []byte) (Record, error) {
	if s.cfg.Compress {
		raw, err := s3client.Decompress(data)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return decodeRecord(data)
}

type fetched struct {
	rec  Record
	etag string
}

// fetch loads a record; ok is false when the object does not exist.
// Concurrent fetches of the same id share one download. The download is
// detached from the first caller's cancellation so it cannot fail the
// others; each caller still stops waiting when its own ctx ends.
func (s *ObjectStore) fetch(ctx context.Context, id string) (Record, string, bool, error) {
	ch := s.sf.DoChan(id, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()

		data, etag, err := s.client.Get(dctx, s.key(id))
		if errors.Is(err, s3client.ErrNotFound) {
			return (*fetched)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		rec, err := s.decode(data)
		if err != nil {
			return nil, fmt.Errorf("context %q: %w", id, err)
		}
		return &fetched{rec: rec, etag: etag}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, "", false, ctx.Err()
	}
	if res.Shared {
		s.cfg.Metrics.RecordSingleflightDedup("contextstore")
	}
	if res.Err != nil {
		return nil, "", false, res.Err
	}
	f := res.Val.(*fetched)
	if f == nil {
		return nil, "", false, nil
	}
	// Shared results must not be mutated by one caller on behalf of another.
	return f.rec.Clone(), f.etag, true, nil
}

func (s *ObjectStore) Get(ctx context.Context, id string) (Record, error) {
	rec, _, ok, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Record{}, nil
	}
	return rec, nil
}

func (s *ObjectStore) Set(ctx context.Context, id string, rec Record) (string, error) {
	if id == "" || len(rec) == 0 {
		return "", nil
	}
	data, err := s.encode(withID(id, rec))
	if err != nil {
		return "", err
	}
	if _, err := s.client.Put(ctx, s.key(id), data, s.contentType()); err != nil {
		return "", err
	}
	return id, nil
}

func (s *ObjectStore) Remove(ctx context.Context, id string) (string, error) {
	_, _, ok, err := s.fetch(ctx, id)
	if err != nil || !ok {
		return "", err
	}
	if err := s.client.Delete(ctx, s.key(id)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *ObjectStore) GetProp(ctx context.Context, id, key string) (any, error) {
	rec, _, _, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec[key], nil
}

func (s *ObjectStore) SetProp(ctx context.Context, id, key string, value any) (Record, error) {
	if id == "" {
		return nil, nil
	}
	return s.update(ctx, id, true, func(rec Record) bool {
		if !writableKey(key) {
			return false
		}
		rec[key] = value
		return true
	})
}

func (s *ObjectStore) RemoveProp(ctx context.Context, id, key string) (Record, error) {
	return s.update(ctx, id, false, func(rec Record) bool {
		if !writableKey(key) {
			return false
		}
		if _, ok := rec[key]; !ok {
			return false
		}
		delete(rec, key)
		return true
	})
}

// update runs a compare-and-swap loop: read with ETag, apply mutate, write
// back conditionally. mutate reports whether anything changed. When create
// is false a missing record yields (nil, nil).
func (s *ObjectStore) update(ctx context.Context, id string, create bool, mutate func(Record) bool) (Record, error) {
	for range s.cfg.MaxAttempts {
		data, etag, err := s.client.Get(ctx, s.key(id))
		exists := err == nil
		if err != nil && !errors.Is(err, s3client.ErrNotFound) {
			return nil, err
		}
		if !exists && !create {
			return nil, nil
		}

		rec := Record{}
		if exists {
			if rec, err = s.decode(data); err != nil {
				return nil, fmt.Errorf("context %q: %w", id, err)
			}
		}
		rec = withID(id, rec)
		if !mutate(rec) {
			return rec, nil
		}

		body, err := s.encode(rec)
		if err != nil {
			return nil, err
		}

		var written bool
		if exists {
			written, _, err = s.client.PutIfMatch(ctx, s.key(id), body, etag, s.contentType())
		} else {
			written, _, err = s.client.PutIfAbsent(ctx, s.key(id), body, s.contentType())
		}
		if err != nil {
			return nil, err
		}
		if written {
			return rec.Clone(), nil
		}
	}
	return nil, fmt.Errorf("context %q: %w", id, domerrors.ErrConflict)
}

// FindByProp lists every record and downloads them in parallel.
func (s *ObjectStore) FindByProp(ctx context.Context, key string, value any) ([]Record, error) {
	keys, err := s.client.List(ctx, s.cfg.Prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		name, ok := strings.CutSuffix(strings.TrimPrefix(k, s.cfg.Prefix), s.ext)
		if !ok || strings.Contains(name, "/") {
			continue
		}
		id, err := url.PathUnescape(name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	found := make([]Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			rec, _, ok, err := s.fetch(gctx, id)
			if err != nil {
				return err
			}
			if ok && matchProp(rec, key, value) {
				found[i] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range found {
		if rec != nil {
			out = append(out, rec)
		}
	}
	sortByID(out)
	return out, nil
}

// Close is a no-op; the underlying client holds no resources.
func (s *ObjectStore) Close() error { return nil }

// Ping checks the bucket when the client supports it.
func (s *ObjectStore) Ping(ctx context.Context) error {
	if p, ok := s.client.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
