package bot

import (
	"context"

	"github.com/calamars-bot/calamars-go/internal/contextstore"
	"github.com/calamars-bot/calamars-go/internal/message"
)

// Session properties maintained by the processor on every turn.
const (
	PropLastSeen = "last_seen"
	PropPlatform = "platform"
)

// Session is the conversation context of one chat, backed by a
// contextstore.Store record.
type Session struct {
	store contextstore.Store
	id    string
}

// SessionID returns the context store id for a chat. Chats on different
// platforms never share a record.
func SessionID(platform message.Platform, chatID string) string {
	return string(platform) + ":" + chatID
}

// NewSession binds store to the record with the given id.
func NewSession(store contextstore.Store, id string) *Session {
	return &Session{store: store, id: id}
}

// ID returns the record id.
func (s *Session) ID() string {
	return s.id
}

// Get returns the whole record. A chat without context yields an empty record.
func (s *Session) Get(ctx context.Context) (contextstore.Record, error) {
	return s.store.Get(ctx, s.id)
}

// Set replaces the whole record.
func (s *Session) Set(ctx context.Context, rec contextstore.Record) error {
	_, err := s.store.Set(ctx, s.id, rec)
	return err
}

// GetProp returns one property, or nil when unset.
func (s *Session) GetProp(ctx context.Context, key string) (any, error) {
	return s.store.GetProp(ctx, s.id, key)
}

// SetProp sets one property.
func (s *Session) SetProp(ctx context.Context, key string, value any) error {
	_, err := s.store.SetProp(ctx, s.id, key, value)
	return err
}

// RemoveProp deletes one property.
func (s *Session) RemoveProp(ctx context.Context, key string) error {
	_, err := s.store.RemoveProp(ctx, s.id, key)
	return err
}

// Clear deletes the record.
func (s *Session) Clear(ctx context.Context) error {
	_, err := s.store.Remove(ctx, s.id)
	return err
}
