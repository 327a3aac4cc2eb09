package message

import (
	"encoding/json"
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestNormalize_Facebook(t *testing.T) {
	update := map[string]any{
		"sender":    map[string]any{"id": "A"},
		"recipient": map[string]any{"id": "B"},
		"timestamp": float64(1465304850533),
		"message":   map[string]any{"mid": "m1", "text": "hello"},
	}

	got := Normalize(update)
	want := &Message{
		Text:        strPtr("hello"),
		Timestamp:   1465304850533,
		MessageID:   "m1",
		IsEcho:      false,
		SenderID:    "A",
		RecipientID: "B",
		ChatID:      "A",
		Platform:    PlatformFacebookMessenger,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestNormalize_FacebookDefaults(t *testing.T) {
	update := map[string]any{
		"sender":    map[string]any{"id": "A"},
		"recipient": map[string]any{"id": "B"},
		"timestamp": float64(1465304850533),
		"delivery":  map[string]any{"watermark": float64(1)},
	}

	got := Normalize(update)
	if got == nil {
		t.Fatal("Normalize() = nil, want message")
	}
	if got.Text != nil {
		t.Errorf("Text = %q, want nil", *got.Text)
	}
	if got.MessageID != "" {
		t.Errorf("MessageID = %q, want empty", got.MessageID)
	}
	if got.IsEcho {
		t.Error("IsEcho = true, want false")
	}
}

func TestNormalize_FacebookEcho(t *testing.T) {
	update := map[string]any{
		"sender":    map[string]any{"id": "PAGE"},
		"recipient": map[string]any{"id": "USER"},
		"timestamp": float64(1465304850533),
		"message":   map[string]any{"mid": "m2", "text": "hi", "is_echo": true},
	}
	got := Normalize(update)
	if got == nil || !got.IsEcho {
		t.Errorf("Normalize() IsEcho = %v, want true", got)
	}
}

func TestNormalize_TelegramSecondsToMillis(t *testing.T) {
	update := map[string]any{
		"update_id": float64(404569936),
		"message": map[string]any{
			"message_id": float64(1942),
			"from":       map[string]any{"id": float64(19555963)},
			"chat":       map[string]any{"id": float64(19555963)},
			"date":       float64(1465310372),
			"text":       "hello",
		},
	}

	got := Normalize(update)
	want := &Message{
		Text:      strPtr("hello"),
		Timestamp: 1465310372000,
		MessageID: "1942",
		SenderID:  "19555963",
		ChatID:    "19555963",
		Platform:  PlatformTelegram,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestNormalize_TelegramMillisPassThrough(t *testing.T) {
	update := map[string]any{
		"update_id": float64(1),
		"message": map[string]any{
			"message_id": float64(1),
			"from":       map[string]any{"id": float64(5)},
			"chat":       map[string]any{"id": float64(-100)},
			"date":       float64(1465310372123),
		},
	}
	got := Normalize(update)
	if got == nil {
		t.Fatal("Normalize() = nil")
	}
	if got.Timestamp != 1465310372123 {
		t.Errorf("Timestamp = %d, want 1465310372123", got.Timestamp)
	}
	if got.ChatID != "-100" {
		t.Errorf("ChatID = %q, want %q", got.ChatID, "-100")
	}
	if got.Text != nil {
		t.Errorf("Text = %q, want nil", *got.Text)
	}
}

func TestNormalize_Unrecognized(t *testing.T) {
	tests := []struct {
		name   string
		update map[string]any
	}{
		{"nil", nil},
		{"empty", map[string]any{}},
		{"facebook missing recipient", map[string]any{
			"sender": map[string]any{"id": "A"}, "timestamp": float64(1),
		}},
		{"facebook zero timestamp", map[string]any{
			"sender": map[string]any{"id": "A"}, "recipient": map[string]any{"id": "B"}, "timestamp": float64(0),
		}},
		{"telegram zero update id", map[string]any{"update_id": float64(0)}},
		{"telegram without message", map[string]any{
			"update_id":      float64(7),
			"callback_query": map[string]any{"id": "q"},
		}},
		{"other", map[string]any{"type": "message", "text": "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.update); got != nil {
				t.Errorf("Normalize() = %+v, want nil", got)
			}
		})
	}
}

func TestNormalize_FacebookCheckedFirst(t *testing.T) {
	update := map[string]any{
		"update_id": float64(1),
		"sender":    map[string]any{"id": "A"},
		"recipient": map[string]any{"id": "B"},
		"timestamp": float64(1465304850533),
		"message":   map[string]any{"text": "both"},
	}
	got := Normalize(update)
	if got == nil || got.Platform != PlatformFacebookMessenger {
		t.Errorf("Normalize() platform = %v, want %q", got, PlatformFacebookMessenger)
	}
}

func TestNormalizeJSON_PreservesLargeIDs(t *testing.T) {
	body := []byte(`{"update_id":404569936,"message":{"message_id":1942,"from":{"id":9007199254740993},"chat":{"id":9007199254740993},"date":1465310372,"text":"hi"}}`)

	got, err := NormalizeJSON(body)
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if got.SenderID != "9007199254740993" {
		t.Errorf("SenderID = %q, want %q", got.SenderID, "9007199254740993")
	}
	if got.Timestamp != 1465310372000 {
		t.Errorf("Timestamp = %d, want 1465310372000", got.Timestamp)
	}
}

func TestNormalizeJSON_InvalidBody(t *testing.T) {
	if _, err := NormalizeJSON([]byte(`{not json`)); err == nil {
		t.Error("NormalizeJSON() error = nil, want error")
	}
}

func TestNormalize_Pure(t *testing.T) {
	update := map[string]any{
		"sender":    map[string]any{"id": "A"},
		"recipient": map[string]any{"id": "B"},
		"timestamp": float64(1465304850533),
		"message":   map[string]any{"mid": "m1", "text": "hello"},
	}
	before, _ := json.Marshal(update)
	first := Normalize(update)
	second := Normalize(update)
	after, _ := json.Marshal(update)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Normalize() not deterministic: %+v vs %+v", first, second)
	}
	if string(before) != string(after) {
		t.Errorf("Normalize() mutated input: %s -> %s", before, after)
	}
}

func TestMessage_JSONShape(t *testing.T) {
	msg := &Message{
		Timestamp: 1,
		SenderID:  "1",
		ChatID:    "1",
		Platform:  PlatformTelegram,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v, ok := decoded["text"]; !ok || v != nil {
		t.Errorf("text = %v (present=%v), want explicit null", v, ok)
	}
	if _, ok := decoded["recipientId"]; ok {
		t.Error("recipientId present for telegram message, want omitted")
	}
	if _, ok := decoded["isEcho"]; ok {
		t.Error("isEcho present for telegram message, want omitted")
	}
	if v, ok := decoded["messageId"]; !ok || v != nil {
		t.Errorf("messageId = %v (present=%v), want explicit null", v, ok)
	}
}

func TestMessage_JSONShapeFacebook(t *testing.T) {
	msg := Normalize(map[string]any{
		"sender":    map[string]any{"id": "A"},
		"recipient": map[string]any{"id": "B"},
		"timestamp": float64(1465304850533),
		"message":   map[string]any{"text": "hello"},
	})
	if msg == nil {
		t.Fatal("Normalize() = nil")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"text":"hello","timestamp":1465304850533,"messageId":null,"isEcho":false,` +
		`"senderId":"A","recipientId":"B","chatId":"A","platform":"facebookMessenger"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s\nwant %s", data, want)
	}
}

func TestTextHelpers(t *testing.T) {
	var nilMsg *Message
	if nilMsg.TextOrEmpty() != "" || nilMsg.HasText() {
		t.Error("nil message should have no text")
	}
	m := &Message{Text: strPtr("")}
	if m.HasText() {
		t.Error("HasText() = true for empty text")
	}
	m.Text = strPtr("hey")
	if !m.HasText() || m.TextOrEmpty() != "hey" {
		t.Errorf("TextOrEmpty() = %q", m.TextOrEmpty())
	}
}

func TestIDString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{float64(19555963), "19555963"},
		{float64(-100123), "-100123"},
		{json.Number("42"), "42"},
		{int64(7), "7"},
		{7, "7"},
		{map[string]any{}, ""},
	}
	for _, tt := range tests {
		if got := idString(tt.in); got != tt.want {
			t.Errorf("idString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDigits(t *testing.T) {
	tests := []struct {
		in   int64
		want int
	}{
		{0, 1},
		{9, 1},
		{10, 2},
		{1465310372, 10},
		{1465310372000, 13},
		{-42, 2},
	}
	for _, tt := range tests {
		if got := digits(tt.in); got != tt.want {
			t.Errorf("digits(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
