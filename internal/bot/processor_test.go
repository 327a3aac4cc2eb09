package bot

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calamars-bot/calamars-go/internal/contextstore"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
	"github.com/calamars-bot/calamars-go/internal/logger"
	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/nlu"
	"github.com/calamars-bot/calamars-go/internal/ratelimit"
	"github.com/calamars-bot/calamars-go/internal/router"
)

type fakeDriver struct {
	result *nlu.Result
	err    error
	calls  atomic.Int32
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) Query(_ context.Context, text string) (*nlu.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Query = text
	return &res, nil
}

type stringer string

func (s stringer) String() string { return string(s) }

func textMessage(text string) *message.Message {
	return &message.Message{
		Text:      &text,
		Timestamp: 1700000000000,
		SenderID:  "u1",
		ChatID:    "c1",
		Platform:  message.PlatformTelegram,
	}
}

func newTestProcessor(t *testing.T, cfg ProcessorConfig) *Processor {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logger.NewWithWriter("error", io.Discard)
	}
	p, err := NewProcessor(cfg)
	require.NoError(t, err)
	return p
}

func TestNewProcessor_RequiresRouter(t *testing.T) {
	_, err := NewProcessor(ProcessorConfig{})
	assert.Error(t, err)
}

func TestProcessor_Handle(t *testing.T) {
	routes := router.Table{}.
		Add(router.Exact("hi"), router.Value("hello!")).
		Add(router.MustRegex(`^echo (.+)$`), router.Invoke(func(input, _ any) any {
			return input.([]string)[1]
		})).
		Add(router.Exact("many"), router.Value([]string{"one", "", "two"})).
		Add(router.Exact("stringer"), router.Value(stringer("from stringer"))).
		Add(router.Exact("silent"), router.Value(nil)).
		Add(router.Exact("number"), router.Value(42)).
		Add(router.Exact("fail"), router.Invoke(func(any, any) any {
			return errors.New("handler failed")
		}))

	p := newTestProcessor(t, ProcessorConfig{Router: router.New(routes), FallbackReply: "sorry?"})
	ctx := context.Background()

	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr error
	}{
		{name: "exact value", text: "hi", want: []string{"hello!"}},
		{name: "whitespace normalized", text: "  hi \n", want: []string{"hello!"}},
		{name: "regex groups", text: "echo a  b", want: []string{"a b"}},
		{name: "slice drops empty", text: "many", want: []string{"one", "two"}},
		{name: "stringer", text: "stringer", want: []string{"from stringer"}},
		{name: "nil result is silent", text: "silent"},
		{name: "fallback", text: "unknown", want: []string{"sorry?"}},
		{name: "unsupported", text: "number", wantErr: domerrors.ErrUnsupportedReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := p.Handle(ctx, textMessage(tt.text))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Texts)
		})
	}

	_, err := p.Handle(ctx, textMessage("fail"))
	assert.EqualError(t, err, "route result: handler failed")
}

func TestProcessor_SkipsEchoAndEmpty(t *testing.T) {
	var calls atomic.Int32
	routes := router.Table{router.Handle(router.When(func(any, any) bool { return true }), func(any, any) any {
		calls.Add(1)
		return "x"
	})}
	p := newTestProcessor(t, ProcessorConfig{Router: router.New(routes)})

	echo := textMessage("hi")
	echo.IsEcho = true
	noText := textMessage("")
	noText.Text = nil

	for _, msg := range []*message.Message{nil, echo, noText, textMessage(""), textMessage("  \t ")} {
		reply, err := p.Handle(context.Background(), msg)
		require.NoError(t, err)
		assert.True(t, reply.IsEmpty())
	}
	assert.Zero(t, calls.Load())
}

func TestProcessor_ChatRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:       "chat",
		Burst:      2,
		RefillRate: 0.0001,
		Metrics:    m,
	})
	defer limiter.Stop()

	p := newTestProcessor(t, ProcessorConfig{
		Router:      router.New(router.Table{router.Reply("hi", "hello")}),
		ChatLimiter: limiter,
		Metrics:     m,
	})

	for range 2 {
		_, err := p.Handle(context.Background(), textMessage("hi"))
		require.NoError(t, err)
	}
	_, err := p.Handle(context.Background(), textMessage("hi"))
	assert.ErrorIs(t, err, domerrors.ErrRateLimitExceeded)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("chat")), 0)

	// Other chats are unaffected
	other := textMessage("hi")
	other.ChatID = "c2"
	reply, err := p.Handle(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, reply.Texts)
}

func TestProcessor_Session(t *testing.T) {
	store := contextstore.NewMemoryStore()
	routes := router.Table{
		router.Handle(router.MustRegex(`^remember (\w+)$`), func(input, extra any) any {
			turn, _ := TurnFrom(extra)
			if err := turn.Session.SetProp(turn.Context(), "name", input.([]string)[1]); err != nil {
				return err
			}
			return "ok"
		}),
		router.Handle(router.Exact("who am i"), func(_, extra any) any {
			turn, _ := TurnFrom(extra)
			name, err := turn.Session.GetProp(turn.Context(), "name")
			if err != nil {
				return err
			}
			if name == nil {
				return "no idea"
			}
			return "you are " + name.(string)
		}),
	}
	p := newTestProcessor(t, ProcessorConfig{Router: router.New(routes), Store: store})
	p.now = func() time.Time { return time.UnixMilli(1700000000123) }
	ctx := context.Background()

	reply, err := p.Handle(ctx, textMessage("who am i"))
	require.NoError(t, err)
	assert.Equal(t, []string{"no idea"}, reply.Texts)

	_, err = p.Handle(ctx, textMessage("remember Ana"))
	require.NoError(t, err)
	reply, err = p.Handle(ctx, textMessage("who am i"))
	require.NoError(t, err)
	assert.Equal(t, []string{"you are Ana"}, reply.Texts)

	rec, err := store.Get(ctx, "telegram:c1")
	require.NoError(t, err)
	assert.Equal(t, "telegram:c1", rec.ID())
	assert.Equal(t, "telegram", rec[PropPlatform])
	assert.InDelta(t, 1700000000123, rec[PropLastSeen], 0)
	assert.Equal(t, "Ana", rec["name"])
}

func TestProcessor_NLUIsLazy(t *testing.T) {
	driver := &fakeDriver{result: &nlu.Result{Intent: "greet", Score: 0.9}}
	routes := router.Table{
		router.Reply("ping", "pong"),
		{Comparator: IntentAbove("greet", 0.95), Callback: router.Value("very sure hello")},
		{Comparator: IntentIs("greet"), Callback: router.Value("hello")},
	}
	p := newTestProcessor(t, ProcessorConfig{Router: router.New(routes), NLU: driver})

	reply, err := p.Handle(context.Background(), textMessage("ping"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pong"}, reply.Texts)
	assert.Zero(t, driver.calls.Load(), "exact route must not query NLU")

	reply, err = p.Handle(context.Background(), textMessage("good morning"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, reply.Texts)
	assert.Equal(t, int32(1), driver.calls.Load(), "one query per turn")
}

func TestProcessor_NLUFailureDoesNotMatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	driver := &fakeDriver{err: errors.New("service down")}
	routes := router.Table{{Comparator: IntentIs("greet"), Callback: router.Value("hello")}}
	p := newTestProcessor(t, ProcessorConfig{
		Router:        router.New(routes),
		NLU:           driver,
		FallbackReply: "fallback",
		Metrics:       m,
	})

	reply, err := p.Handle(context.Background(), textMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, reply.Texts)
	assert.InDelta(t, 1, testutil.ToFloat64(m.NLUQueriesTotal.WithLabelValues("fake", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RouteOutcomesTotal.WithLabelValues("unmatched")), 0)
}

func TestProcessor_NLURateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	nluLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:       "nlu",
		Burst:      1,
		RefillRate: 0.0001,
		Metrics:    m,
	})
	defer nluLimiter.Stop()

	driver := &fakeDriver{result: &nlu.Result{Intent: "greet", Score: 1}}
	routes := router.Table{{Comparator: IntentIs("greet"), Callback: router.Value("hello")}}
	p := newTestProcessor(t, ProcessorConfig{
		Router:     router.New(routes),
		NLU:        driver,
		NLULimiter: nluLimiter,
		Metrics:    m,
	})

	reply, err := p.Handle(context.Background(), textMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, reply.Texts)

	reply, err = p.Handle(context.Background(), textMessage("hi"))
	require.NoError(t, err)
	assert.True(t, reply.IsEmpty())
	assert.Equal(t, int32(1), driver.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.NLUQueriesTotal.WithLabelValues("fake", "rate_limited")), 0)
}

func TestProcessor_PanicsPropagate(t *testing.T) {
	routes := router.Table{router.Handle(router.Exact("boom"), func(any, any) any { panic("boom") })}
	p := newTestProcessor(t, ProcessorConfig{Router: router.New(routes)})
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = p.Handle(context.Background(), textMessage("boom"))
	})
}
