package nlu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

func TestNewWit_RequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := NewWit(WitConfig{}); !domerrors.IsInvalidInput(err) {
		t.Errorf("NewWit() error = %v, want validation error", err)
	}
}

func TestWit_QueryLegacyFormat(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("v") != "20160330" || q.Get("q") != "olá mundo" || q.Get("n") != "1" {
			t.Errorf("query = %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.wit.20160330+json" {
			t.Errorf("Accept = %q", got)
		}
		_, _ = w.Write([]byte(`{
			"msg_id": "abc",
			"_text": "olá mundo",
			"outcomes": [{
				"_text": "olá mundo",
				"intent": "greeting",
				"confidence": 0.87,
				"entities": {"location": [{"value": "mundo", "confidence": 0.7}]}
			}]
		}`))
	}))
	defer srv.Close()

	wit, err := NewWit(WitConfig{ServerToken: "secret", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewWit() error = %v", err)
	}
	res, err := wit.Query(context.Background(), "olá mundo")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if intent, score := res.TopIntent(); intent != "greeting" || score != 0.87 {
		t.Errorf("TopIntent() = %q, %v", intent, score)
	}
	if res.Query != "olá mundo" {
		t.Errorf("Query = %q", res.Query)
	}
	if loc := res.EntitiesOf("location"); len(loc) != 1 || loc[0].Value != "mundo" {
		t.Errorf("EntitiesOf(location) = %+v", loc)
	}
	if res.Raw["msg_id"] != "abc" {
		t.Errorf("Raw[msg_id] = %v", res.Raw["msg_id"])
	}
}

func TestWit_QueryCurrentFormat(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("n") != "3" {
			t.Errorf("n = %q", r.URL.Query().Get("n"))
		}
		_, _ = w.Write([]byte(`{
			"text": "set alarm at 7",
			"intents": [
				{"name": "cancel_alarm", "confidence": 0.1},
				{"name": "set_alarm", "confidence": 0.95}
			],
			"entities": {
				"wit$datetime:datetime": [{"body": "at 7", "start": 10, "end": 14, "confidence": 0.9, "value": "2024-01-01T07:00:00"}]
			}
		}`))
	}))
	defer srv.Close()

	wit, _ := NewWit(WitConfig{ServerToken: "t", Endpoint: srv.URL, Version: "20240101", Outcomes: 3})
	res, err := wit.Query(context.Background(), "set alarm at 7")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Intent != "set_alarm" || res.Score != 0.95 {
		t.Errorf("TopIntent() = %q, %v", res.Intent, res.Score)
	}
	dt := res.EntitiesOf("wit$datetime")
	if len(dt) != 1 || dt[0].Start != 10 || dt[0].End != 14 || dt[0].Value != "2024-01-01T07:00:00" {
		t.Errorf("EntitiesOf(wit$datetime) = %+v", dt)
	}
}

func TestWit_GetMessage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/msg-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("v") != DefaultWitVersion {
			t.Errorf("v = %q", r.URL.Query().Get("v"))
		}
		_, _ = w.Write([]byte(`{"msg_id":"msg-1","_text":"hello"}`))
	}))
	defer srv.Close()

	wit, _ := NewWit(WitConfig{ServerToken: "t", Endpoint: srv.URL})
	msg, err := wit.GetMessage(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if msg["_text"] != "hello" {
		t.Errorf("GetMessage() = %v", msg)
	}

	if _, err := wit.GetMessage(context.Background(), ""); !domerrors.IsInvalidInput(err) {
		t.Errorf("GetMessage(\"\") error = %v, want validation error", err)
	}
}
