// Package message converts platform webhook payloads into one canonical
// message shape that the rest of the bot works with.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Platform identifies the chat platform a message came from.
type Platform string

const (
	PlatformFacebookMessenger Platform = "facebookMessenger"
	PlatformTelegram          Platform = "telegram"
	PlatformLINE              Platform = "line"
)

// Message is the canonical inbound chat message.
//
// Identifiers are always strings; numeric ids from JSON are rendered in
// decimal. Text is nil when the update carried no text (stickers,
// attachments, delivery receipts).
type Message struct {
	Text        *string  `json:"text"`
	Timestamp   int64    `json:"timestamp"` // Unix milliseconds
	MessageID   string   `json:"messageId"` // "" encodes as null
	IsEcho      bool     `json:"isEcho"`    // encoded for Facebook only
	SenderID    string   `json:"senderId"`
	RecipientID string   `json:"recipientId,omitempty"`
	ChatID      string   `json:"chatId"`
	Platform    Platform `json:"platform"`
}

// wireMessage is the JSON layout of Message.
type wireMessage struct {
	Text        *string  `json:"text"`
	Timestamp   int64    `json:"timestamp"`
	MessageID   *string  `json:"messageId"`
	IsEcho      *bool    `json:"isEcho,omitempty"`
	SenderID    string   `json:"senderId"`
	RecipientID string   `json:"recipientId,omitempty"`
	ChatID      string   `json:"chatId"`
	Platform    Platform `json:"platform"`
}

// MarshalJSON writes a missing message id as null and leaves isEcho out
// for platforms that have no echoes.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Text:        m.Text,
		Timestamp:   m.Timestamp,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		ChatID:      m.ChatID,
		Platform:    m.Platform,
	}
	if m.MessageID != "" {
		id := m.MessageID
		w.MessageID = &id
	}
	if m.Platform == PlatformFacebookMessenger {
		echo := m.IsEcho
		w.IsEcho = &echo
	}
	return json.Marshal(w)
}

// TextOrEmpty returns the message text, or "" when there is none.
func (m *Message) TextOrEmpty() string {
	if m == nil || m.Text == nil {
		return ""
	}
	return *m.Text
}

// HasText reports whether the message carries non-empty text.
func (m *Message) HasText() bool {
	return m != nil && m.Text != nil && *m.Text != ""
}

// Normalize converts a decoded platform update into a Message.
// It returns nil when the update matches no known platform shape.
// Facebook messaging items are checked before Telegram updates.
func Normalize(update map[string]any) *Message {
	switch {
	case IsFacebookUpdate(update):
		return fromFacebook(update)
	case IsTelegramUpdate(update):
		return fromTelegram(update)
	default:
		return nil
	}
}

// NormalizeJSON decodes body and normalizes it. Numbers are kept exact so
// that large ids and millisecond timestamps survive decoding.
func NormalizeJSON(body []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var update map[string]any
	if err := dec.Decode(&update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return Normalize(update), nil
}

// IsFacebookUpdate reports whether update looks like a Messenger messaging
// item: timestamp, sender and recipient must all be present and truthy.
func IsFacebookUpdate(update map[string]any) bool {
	if update == nil {
		return false
	}
	return Truthy(update["timestamp"]) && Truthy(update["sender"]) && Truthy(update["recipient"])
}

// IsTelegramUpdate reports whether update looks like a Telegram Bot API
// update, identified by a truthy update_id.
func IsTelegramUpdate(update map[string]any) bool {
	if update == nil {
		return false
	}
	return Truthy(update["update_id"])
}

func fromFacebook(update map[string]any) *Message {
	msg := object(update["message"])
	senderID := idString(object(update["sender"])["id"])
	ts, _ := toInt64(update["timestamp"])

	isEcho, _ := msg["is_echo"].(bool)

	return &Message{
		Text:        optionalString(msg["text"]),
		Timestamp:   ts,
		MessageID:   idString(msg["mid"]),
		IsEcho:      isEcho,
		SenderID:    senderID,
		RecipientID: idString(object(update["recipient"])["id"]),
		ChatID:      senderID,
		Platform:    PlatformFacebookMessenger,
	}
}

func fromTelegram(update map[string]any) *Message {
	msg := object(update["message"])
	if msg == nil {
		return nil
	}

	date, _ := toInt64(msg["date"])

	return &Message{
		Text:      optionalString(msg["text"]),
		Timestamp: toMillis(date),
		MessageID: idString(msg["message_id"]),
		SenderID:  idString(object(msg["from"])["id"]),
		ChatID:    idString(object(msg["chat"])["id"]),
		Platform:  PlatformTelegram,
	}
}

// toMillis converts second-resolution timestamps (fewer than 13 decimal
// digits) to milliseconds and passes millisecond timestamps through.
func toMillis(ts int64) int64 {
	if digits(ts) < 13 {
		return ts * 1000
	}
	return ts
}

func digits(n int64) int {
	if n < 0 {
		n = -n
	}
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
