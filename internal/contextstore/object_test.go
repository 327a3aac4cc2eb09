package contextstore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/s3client"
)

type fakeObject struct {
	data []byte
	etag string
}

// fakeObjects is an in-memory ObjectClient with real ETag semantics.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	version int

	// staleWrites makes the next N conditional writes fail as if another
	// writer got there first.
	staleWrites int
	gets        int
	listErr     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string]fakeObject)}
}

func (f *fakeObjects) nextETag() string {
	f.version++
	return "etag-" + strconv.Itoa(f.version)
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	obj, ok := f.objects[key]
	if !ok {
		return nil, "", s3client.ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.etag, nil
}

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	etag := f.nextETag()
	f.objects[key] = fakeObject{data: append([]byte(nil), data...), etag: etag}
	return etag, nil
}

func (f *fakeObjects) PutIfAbsent(_ context.Context, key string, data []byte, _ string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleWrites > 0 {
		f.staleWrites--
		return false, "", nil
	}
	if _, ok := f.objects[key]; ok {
		return false, "", nil
	}
	etag := f.nextETag()
	f.objects[key] = fakeObject{data: append([]byte(nil), data...), etag: etag}
	return true, etag, nil
}

func (f *fakeObjects) PutIfMatch(_ context.Context, key string, data []byte, etag, _ string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleWrites > 0 {
		f.staleWrites--
		return false, "", nil
	}
	obj, ok := f.objects[key]
	if !ok || obj.etag != etag {
		return false, "", nil
	}
	next := f.nextETag()
	f.objects[key] = fakeObject{data: append([]byte(nil), data...), etag: next}
	return true, next, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func TestObjectStore_KeyLayout(t *testing.T) {
	t.Parallel()
	objects := newFakeObjects()
	store := NewObjectStore(objects, ObjectStoreConfig{Prefix: "ctx/"})

	_, err := store.Set(context.Background(), "a/b c", Record{"k": "v"})
	require.NoError(t, err)

	_, ok := objects.objects["ctx/a%2Fb%20c.json"]
	assert.True(t, ok, "keys = %v", objects.objects)

	zstd := NewObjectStore(objects, ObjectStoreConfig{Prefix: "ctx/", Compress: true})
	assert.Equal(t, "ctx/42.json.zst", zstd.key("42"))
}

func TestObjectStore_FindByPropRoundTripsEscapedIDs(t *testing.T) {
	t.Parallel()
	objects := newFakeObjects()
	store := NewObjectStore(objects, ObjectStoreConfig{Prefix: "ctx/"})
	ctx := context.Background()

	_, err := store.Set(ctx, "group/1", Record{"topic": "go"})
	require.NoError(t, err)
	// Foreign objects under the prefix are ignored.
	_, err = objects.Put(ctx, "ctx/readme.txt", []byte("hi"), "text/plain")
	require.NoError(t, err)
	_, err = objects.Put(ctx, "ctx/nested/2.json", []byte(`{"topic":"go"}`), "application/json")
	require.NoError(t, err)

	found, err := store.FindByProp(ctx, "topic", "go")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "group/1", found[0].ID())
}

func TestObjectStore_SetPropRetriesOnConflict(t *testing.T) {
	t.Parallel()
	objects := newFakeObjects()
	store := NewObjectStore(objects, ObjectStoreConfig{MaxAttempts: 3})
	ctx := context.Background()

	_, err := store.Set(ctx, "1", Record{"a": "x"})
	require.NoError(t, err)

	objects.staleWrites = 2
	rec, err := store.SetProp(ctx, "1", "b", "y")
	require.NoError(t, err)
	assert.Equal(t, Record{"id": "1", "a": "x", "b": "y"}, rec)
}

func TestObjectStore_SetPropGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	objects := newFakeObjects()
	store := NewObjectStore(objects, ObjectStoreConfig{MaxAttempts: 2})

	objects.staleWrites = 5
	_, err := store.SetProp(context.Background(), "1", "b", "y")
	require.Error(t, err)
	assert.ErrorIs(t, err, domerrors.ErrConflict)
}

func TestObjectStore_ListError(t *testing.T) {
	t.Parallel()
	objects := newFakeObjects()
	objects.listErr = errors.New("bucket gone")
	store := NewObjectStore(objects, ObjectStoreConfig{})

	_, err := store.FindByProp(context.Background(), "k", "v")
	assert.ErrorContains(t, err, "bucket gone")
}

func TestObjectStore_CorruptObject(t *testing.T) {
	t.Parallel()
	objects := newFakeObjects()
	store := NewObjectStore(objects, ObjectStoreConfig{Compress: true})
	ctx := context.Background()

	_, err := objects.Put(ctx, store.key("1"), []byte("not zstd"), "")
	require.NoError(t, err)

	_, err = store.Get(ctx, "1")
	assert.Error(t, err)
}

// gatedObjects holds every Get until release is closed and records whether
// the download context was still live when it finished.
type gatedObjects struct {
	*fakeObjects
	once    sync.Once
	started chan struct{}
	release chan struct{}
	done    chan error
}

func (g *gatedObjects) Get(ctx context.Context, key string) ([]byte, string, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	select {
	case g.done <- ctx.Err():
	default:
	}
	return g.fakeObjects.Get(ctx, key)
}

func TestObjectStore_CancelledReaderDoesNotFailSharedFetch(t *testing.T) {
	t.Parallel()
	objects := &gatedObjects{
		fakeObjects: newFakeObjects(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
		done:        make(chan error, 1),
	}
	store := NewObjectStore(objects, ObjectStoreConfig{})
	_, err := objects.fakeObjects.Put(context.Background(), store.key("1"), []byte(`{"id":"1","k":"v"}`), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := store.Get(ctx, "1")
		errCh <- err
	}()

	<-objects.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled, "the cancelled reader stops waiting")

	close(objects.release)
	assert.NoError(t, <-objects.done, "the shared download keeps a live context")

	rec, err := store.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "v", rec["k"])
}

func TestWithMetrics(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	store := WithMetrics(NewMemoryStore(), "memory", m)
	ctx := context.Background()

	_, err := store.Set(ctx, "1", Record{"k": "v"})
	require.NoError(t, err)
	_, err = store.Get(ctx, "1")
	require.NoError(t, err)
	_, err = store.Get(ctx, "2")
	require.NoError(t, err)

	assert.InDelta(t, 2, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("memory", "get", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("memory", "set", "success")), 0)

	p, ok := store.(Pinger)
	require.True(t, ok)
	assert.NoError(t, p.Ping(ctx))

	plain := NewMemoryStore()
	assert.Same(t, plain, WithMetrics(plain, "memory", nil))
}
