// Package nlu provides drivers for external intent classification services.
//
// The bot does no language understanding of its own. A Driver forwards the
// user's text to a hosted service (LUIS, Wit.ai, an OpenAI-compatible model
// or Gemini) and returns the service's verdict as a Result, which routes can
// then inspect through the turn's extra context.
package nlu

import (
	"context"
	"fmt"
	"slices"

	"github.com/calamars-bot/calamars-go/internal/config"
)

// Driver names, used for logs and metrics labels.
const (
	DriverLUIS   = "luis"
	DriverWit    = "wit"
	DriverLLM    = "openai"
	DriverGemini = "gemini"
)

// Driver queries an intent classification service.
type Driver interface {
	// Query classifies text. It returns an error only when the service could
	// not be reached or answered with something unreadable.
	Query(ctx context.Context, text string) (*Result, error)
	// Name identifies the driver.
	Name() string
}

// Intent is one candidate classification.
type Intent struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Entity is a span of the query recognized by the service.
type Entity struct {
	Type  string  `json:"type"`
	Value string  `json:"value"`
	Score float64 `json:"score,omitempty"`
	Start int     `json:"start,omitempty"`
	End   int     `json:"end,omitempty"`
}

// Result is a driver's answer for one query.
type Result struct {
	Query    string
	Intent   string  // best intent, "" when the service returned none
	Score    float64 // confidence of Intent in [0, 1]
	Intents  []Intent
	Entities []Entity
	// Raw is the decoded service response for fields not mapped above.
	// LLM drivers leave it nil.
	Raw map[string]any
}

// TopIntent returns the best intent and its score. It is safe on nil.
func (r *Result) TopIntent() (string, float64) {
	if r == nil {
		return "", 0
	}
	return r.Intent, r.Score
}

// EntitiesOf returns the entities of the given type.
func (r *Result) EntitiesOf(kind string) []Entity {
	if r == nil {
		return nil
	}
	var out []Entity
	for _, e := range r.Entities {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// rank sorts intents by descending score and sets Intent/Score from the best.
func (r *Result) rank() {
	slices.SortStableFunc(r.Intents, func(a, b Intent) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(r.Intents) > 0 {
		r.Intent = r.Intents[0].Name
		r.Score = r.Intents[0].Score
	}
}

// New builds the driver selected by cfg. It returns nil, nil when no driver
// is configured.
func New(ctx context.Context, cfg config.NLUConfig) (Driver, error) {
	var (
		driver Driver
		err    error
	)
	switch cfg.Driver {
	case config.NLUNone:
		return nil, nil //nolint:nilnil // Intentional: NLU disabled
	case config.NLULUIS:
		driver, err = NewLUIS(LUISConfig{
			AppID:           cfg.LUISAppID,
			SubscriptionKey: cfg.LUISKey,
			Endpoint:        cfg.LUISEndpoint,
		})
	case config.NLUWit:
		driver, err = NewWit(WitConfig{
			ServerToken: cfg.WitToken,
			Version:     cfg.WitVersion,
		})
	case config.NLUOpenAI:
		driver, err = NewLLM(LLMConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Intents: cfg.Intents,
		})
	case config.NLUGemini:
		driver, err = NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Intents: cfg.Intents,
		})
	default:
		return nil, fmt.Errorf("nlu: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("nlu: create %s driver: %w", cfg.Driver, err)
	}
	return driver, nil
}
