package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestStringValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"user id", WithUserID, GetUserID},
		{"chat id", WithChatID, GetChatID},
		{"platform", WithPlatform, GetPlatform},
		{"message id", WithMessageID, GetMessageID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			if got := tt.get(ctx); got != "" {
				t.Errorf("Expected empty string, got %s", got)
			}
			ctx = tt.with(ctx, "value-1")
			if got := tt.get(ctx); got != "value-1" {
				t.Errorf("Expected value-1, got %s", got)
			}
			ctx = tt.with(ctx, "")
			if got := tt.get(ctx); got != "" {
				t.Errorf("Expected empty string after clearing, got %s", got)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	if _, ok := GetRequestID(context.Background()); ok {
		t.Error("Expected no request ID in empty context")
	}

	ctx := WithRequestID(context.Background(), "req-1")
	if id, ok := GetRequestID(ctx); !ok || id != "req-1" {
		t.Errorf("Expected req-1, got %s (ok=%v)", id, ok)
	}
}

func TestMustGetChatID_Panic(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected MustGetChatID to panic on empty context")
		}
	}()

	MustGetChatID(context.Background())
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithUserID(parent, "u1")
	parent = WithChatID(parent, "c1")
	parent = WithRequestID(parent, "r1")
	parent = WithPlatform(parent, "telegram")
	parent = WithMessageID(parent, "m1")
	cancel()

	detached := PreserveTracing(parent)

	if detached.Err() != nil {
		t.Errorf("Detached context should not be canceled, got %v", detached.Err())
	}
	if _, ok := detached.Deadline(); ok {
		t.Error("Detached context should have no deadline")
	}
	if GetUserID(detached) != "u1" || GetChatID(detached) != "c1" {
		t.Error("User and chat IDs not preserved")
	}
	if id, _ := GetRequestID(detached); id != "r1" {
		t.Errorf("Request ID = %s, want r1", id)
	}
	if GetPlatform(detached) != "telegram" || GetMessageID(detached) != "m1" {
		t.Error("Platform and message ID not preserved")
	}
}
