package bot

import (
	"context"
	"testing"

	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/nlu"
	"github.com/calamars-bot/calamars-go/internal/router"
)

func TestIntentComparators(t *testing.T) {
	t.Parallel()
	classify := func(context.Context, string) *nlu.Result {
		return &nlu.Result{Intent: "order", Score: 0.6}
	}
	turn := NewTurn(context.Background(), textMessage("a pizza please"), "a pizza please", nil, classify)

	r := router.New(router.Table{
		{Comparator: IntentAbove("order", 0.8), Callback: router.Value("confident")},
		{Comparator: IntentIs("order"), Callback: router.Value("order")},
	})
	if got := r.Route("a pizza please", turn); got != "order" {
		t.Errorf("Route() = %v, want order", got)
	}

	// Without a Turn as extra, intent routes never match
	if got, ok := r.Match("a pizza please", nil); ok {
		t.Errorf("Match() with nil extra = %v, want no match", got)
	}

	// Without a driver there is no intent, not even the empty one
	bare := NewTurn(context.Background(), textMessage("x"), "x", nil, nil)
	if intentIsMatches(t, "", bare) {
		t.Error("IntentIs(\"\") matched a turn without NLU")
	}
}

// intentIsMatches reports whether IntentIs(name) accepts turn.
func intentIsMatches(t *testing.T, name string, turn *Turn) bool {
	t.Helper()
	_, ok := router.New(router.Table{{Comparator: IntentIs(name), Callback: router.Value(true)}}).Match("", turn)
	return ok
}

func TestOnPlatform(t *testing.T) {
	t.Parallel()
	fb := textMessage("hi")
	fb.Platform = message.PlatformFacebookMessenger
	r := router.New(router.Table{
		{Comparator: OnPlatform(message.PlatformTelegram), Callback: router.Value("tg")},
		{Comparator: OnPlatform(message.PlatformFacebookMessenger), Callback: router.Value("fb")},
	})
	if got := r.Route("hi", NewTurn(context.Background(), fb, "hi", nil, nil)); got != "fb" {
		t.Errorf("Route() = %v, want fb", got)
	}
}

func TestKeywords(t *testing.T) {
	t.Parallel()
	r := router.New(router.Table{
		router.Handle(Keywords("weather", "forecast"), func(input, _ any) any {
			return input.([]string)[1]
		}),
	})
	if got := r.Route("Forecast Lisbon", nil); got != "Forecast" {
		t.Errorf("Route() = %v, want Forecast", got)
	}
	if _, ok := r.Match("forecasting", nil); ok {
		t.Error("Keywords matched a longer word")
	}
}

func TestTurn_NLUCalledOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	turn := NewTurn(context.Background(), textMessage("x"), "x", nil, func(_ context.Context, text string) *nlu.Result {
		calls++
		return &nlu.Result{Query: text}
	})
	turn.NLU()
	turn.NLU()
	if calls != 1 {
		t.Errorf("classify called %d times, want 1", calls)
	}
}

func TestToReply(t *testing.T) {
	t.Parallel()
	var nilReply *Reply
	tests := []struct {
		name    string
		in      any
		want    []string
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"string", "a", []string{"a"}, false},
		{"empty string", "", nil, false},
		{"slice", []string{"a", "b"}, []string{"a", "b"}, false},
		{"reply", Reply{Texts: []string{"a", ""}}, []string{"a"}, false},
		{"reply pointer", &Reply{Texts: []string{"b"}}, []string{"b"}, false},
		{"nil reply pointer", nilReply, nil, false},
		{"stringer", stringer("s"), []string{"s"}, false},
		{"int", 1, nil, true},
		{"map", map[string]any{}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toReply(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("toReply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got.Texts) != len(tt.want) {
				t.Fatalf("toReply() = %v, want %v", got.Texts, tt.want)
			}
			for i := range tt.want {
				if got.Texts[i] != tt.want[i] {
					t.Errorf("Texts[%d] = %q, want %q", i, got.Texts[i], tt.want[i])
				}
			}
		})
	}
}
