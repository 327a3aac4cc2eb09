package nlu

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// Wit.ai defaults.
const (
	DefaultWitEndpoint = "https://api.wit.ai"
	DefaultWitVersion  = "20160330"
)

// WitConfig configures a Wit.ai driver.
type WitConfig struct {
	ServerToken string
	Version     string // API version date, default DefaultWitVersion
	Endpoint    string // default DefaultWitEndpoint
	// Outcomes is the number of n-best outcomes requested per query (default 1).
	Outcomes   int
	HTTPClient *http.Client
}

// Wit queries a Wit.ai application.
type Wit struct {
	endpoint string
	version  string
	outcomes int
	header   http.Header
	client   *http.Client
}

// NewWit creates a Wit.ai driver. The server access token is required.
func NewWit(cfg WitConfig) (*Wit, error) {
	if cfg.ServerToken == "" {
		return nil, domerrors.NewValidationError("wit", "server token is required")
	}
	version := cfg.Version
	if version == "" {
		version = DefaultWitVersion
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultWitEndpoint
	}
	outcomes := cfg.Outcomes
	if outcomes <= 0 {
		outcomes = 1
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.ServerToken)
	header.Set("Accept", "application/vnd.wit."+version+"+json")

	return &Wit{
		endpoint: endpoint,
		version:  version,
		outcomes: outcomes,
		header:   header,
		client:   client,
	}, nil
}

// Name implements Driver.
func (w *Wit) Name() string { return DriverWit }

// witEntity covers both the legacy (value only) and current (body, role,
// span) entity shapes.
type witEntity struct {
	Value      any     `json:"value"`
	Body       string  `json:"body"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// witResponse covers the 20160330 "outcomes" format and the newer
// "intents" format.
type witResponse struct {
	LegacyText string `json:"_text"`
	Text       string `json:"text"`
	Outcomes   []struct {
		Intent     string                 `json:"intent"`
		Confidence float64                `json:"confidence"`
		Entities   map[string][]witEntity `json:"entities"`
	} `json:"outcomes"`
	Intents []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"intents"`
	Entities map[string][]witEntity `json:"entities"`
}

// Query implements Driver.
func (w *Wit) Query(ctx context.Context, text string) (*Result, error) {
	q := url.Values{}
	q.Set("v", w.version)
	q.Set("q", text)
	q.Set("n", strconv.Itoa(w.outcomes))

	var resp witResponse
	body, err := getJSON(ctx, w.client, DriverWit, w.endpoint+"/message?"+q.Encode(), w.header, &resp)
	if err != nil {
		return nil, err
	}

	result := &Result{Query: text, Raw: decodeRaw(body)}
	switch {
	case resp.Text != "":
		result.Query = resp.Text
	case resp.LegacyText != "":
		result.Query = resp.LegacyText
	}

	for _, in := range resp.Intents {
		result.Intents = append(result.Intents, Intent{Name: in.Name, Score: in.Confidence})
	}
	result.Entities = append(result.Entities, witEntities(resp.Entities)...)
	for _, out := range resp.Outcomes {
		if out.Intent != "" {
			result.Intents = append(result.Intents, Intent{Name: out.Intent, Score: out.Confidence})
		}
		result.Entities = append(result.Entities, witEntities(out.Entities)...)
	}
	result.rank()
	return result, nil
}

// GetMessage returns the stored details of a previously processed message.
func (w *Wit) GetMessage(ctx context.Context, messageID string) (map[string]any, error) {
	if messageID == "" {
		return nil, domerrors.NewValidationError("message_id", "cannot be empty")
	}
	q := url.Values{}
	q.Set("v", w.version)
	u := w.endpoint + "/messages/" + url.PathEscape(messageID) + "?" + q.Encode()

	var out map[string]any
	if _, err := getJSON(ctx, w.client, DriverWit, u, w.header, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func witEntities(m map[string][]witEntity) []Entity {
	var out []Entity
	for _, key := range slices.Sorted(maps.Keys(m)) {
		kind, list := key, m[key]
		// Current API keys entities as "name:role"
		if name, _, ok := strings.Cut(kind, ":"); ok {
			kind = name
		}
		for _, e := range list {
			value := e.Body
			if e.Value != nil {
				value = fmt.Sprint(e.Value)
			}
			out = append(out, Entity{
				Type:  kind,
				Value: value,
				Score: e.Confidence,
				Start: e.Start,
				End:   e.End,
			})
		}
	}
	return out
}
