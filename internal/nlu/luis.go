package nlu

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// DefaultLUISEndpoint is the LUIS preview API host.
const DefaultLUISEndpoint = "https://api.projectoxford.ai"

const luisPreviewPath = "/luis/v1/application/preview"

// LUISConfig configures a LUIS driver.
type LUISConfig struct {
	AppID           string
	SubscriptionKey string
	Endpoint        string       // default DefaultLUISEndpoint
	HTTPClient      *http.Client // optional
}

// LUIS queries a Microsoft LUIS application.
type LUIS struct {
	baseURL string
	appID   string
	key     string
	client  *http.Client
}

// NewLUIS creates a LUIS driver. Both the app id and the subscription key
// are required.
func NewLUIS(cfg LUISConfig) (*LUIS, error) {
	if cfg.AppID == "" || cfg.SubscriptionKey == "" {
		return nil, domerrors.NewValidationError("luis", "app id and subscription key are required")
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultLUISEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	return &LUIS{
		baseURL: endpoint + luisPreviewPath,
		appID:   cfg.AppID,
		key:     cfg.SubscriptionKey,
		client:  client,
	}, nil
}

// Name implements Driver.
func (l *LUIS) Name() string { return DriverLUIS }

type luisResponse struct {
	Query            string `json:"query"`
	TopScoringIntent *struct {
		Intent string  `json:"intent"`
		Score  float64 `json:"score"`
	} `json:"topScoringIntent"`
	Intents []struct {
		Intent string  `json:"intent"`
		Score  float64 `json:"score"`
	} `json:"intents"`
	Entities []struct {
		Entity     string  `json:"entity"`
		Type       string  `json:"type"`
		StartIndex int     `json:"startIndex"`
		EndIndex   int     `json:"endIndex"`
		Score      float64 `json:"score"`
	} `json:"entities"`
}

// Query implements Driver.
func (l *LUIS) Query(ctx context.Context, text string) (*Result, error) {
	q := url.Values{}
	q.Set("id", l.appID)
	q.Set("subscription-key", l.key)
	q.Set("q", text)

	var resp luisResponse
	body, err := getJSON(ctx, l.client, DriverLUIS, l.baseURL+"?"+q.Encode(), nil, &resp)
	if err != nil {
		return nil, err
	}

	result := &Result{Query: resp.Query, Raw: decodeRaw(body)}
	if result.Query == "" {
		result.Query = text
	}
	for _, in := range resp.Intents {
		result.Intents = append(result.Intents, Intent{Name: in.Intent, Score: in.Score})
	}
	for _, e := range resp.Entities {
		result.Entities = append(result.Entities, Entity{
			Type:  e.Type,
			Value: e.Entity,
			Score: e.Score,
			Start: e.StartIndex,
			End:   e.EndIndex,
		})
	}
	result.rank()
	if top := resp.TopScoringIntent; top != nil {
		result.Intent, result.Score = top.Intent, top.Score
	}
	return result, nil
}
