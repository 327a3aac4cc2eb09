package bot

import (
	"context"
	"sync"

	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/nlu"
	"github.com/calamars-bot/calamars-go/internal/router"
)

// Turn is the extra context handed to every route predicate and handler
// while one inbound message is routed.
type Turn struct {
	ctx     context.Context
	Message *message.Message
	// Text is the routed input after whitespace normalization.
	Text string
	// Session is nil when the processor has no context store.
	Session *Session

	classify func(ctx context.Context, text string) *nlu.Result
	nluOnce  sync.Once
	nlu      *nlu.Result
}

// NewTurn creates a Turn. classify may be nil when no NLU driver is set.
func NewTurn(ctx context.Context, msg *message.Message, text string, session *Session, classify func(context.Context, string) *nlu.Result) *Turn {
	return &Turn{
		ctx:      ctx,
		Message:  msg,
		Text:     text,
		Session:  session,
		classify: classify,
	}
}

// Context returns the context of the update being processed. Handlers use
// it for session access and outbound calls.
func (t *Turn) Context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// NLU returns the intent classification of the turn's text. The driver is
// queried at most once per turn, and only when a route asks for it. The
// result is nil when no driver is configured, the chat exhausted its NLU
// quota, or the query failed.
func (t *Turn) NLU() *nlu.Result {
	t.nluOnce.Do(func() {
		if t.classify != nil {
			t.nlu = t.classify(t.Context(), t.Text)
		}
	})
	return t.nlu
}

// TurnFrom extracts the Turn from a router extra value.
func TurnFrom(extra any) (*Turn, bool) {
	t, ok := extra.(*Turn)
	return t, ok && t != nil
}

// IntentIs returns a comparator matching turns whose top NLU intent is name.
func IntentIs(name string) router.Comparator {
	return router.When(func(_, extra any) bool {
		t, ok := TurnFrom(extra)
		if !ok {
			return false
		}
		intent, _ := t.NLU().TopIntent()
		return intent != "" && intent == name
	})
}

// IntentAbove is like IntentIs but also requires a score of at least minScore.
func IntentAbove(name string, minScore float64) router.Comparator {
	return router.When(func(_, extra any) bool {
		t, ok := TurnFrom(extra)
		if !ok {
			return false
		}
		intent, score := t.NLU().TopIntent()
		return intent != "" && intent == name && score >= minScore
	})
}

// OnPlatform returns a comparator matching turns from the given platform.
func OnPlatform(p message.Platform) router.Comparator {
	return router.When(func(_, extra any) bool {
		t, ok := TurnFrom(extra)
		return ok && t.Message != nil && t.Message.Platform == p
	})
}

// Keywords returns a regex comparator matching text that starts with one of
// the keywords, followed by a space or the end of the text. The keyword is
// submatch 1, so handlers receive it as groups[1].
func Keywords(keywords ...string) router.Comparator {
	return router.Pattern(BuildKeywordRegex(keywords))
}
