package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithIdentity(ctx, "user-1", "session-1")

	userID, ok := GetUserID(ctx)
	if !ok {
		t.Fatal("GetUserID should return true")
	}
	if userID != "user-1" {
		t.Errorf("user_id = %q, want %q", userID, "user-1")
	}

	sessionID, ok := GetSessionID(ctx)
	if !ok {
		t.Fatal("GetSessionID should return true")
	}
	if sessionID != "session-1" {
		t.Errorf("session_id = %q, want %q", sessionID, "session-1")
	}
}

func TestGetUserID_ReturnsFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()

	userID, ok := GetUserID(ctx)
	if ok {
		t.Error("GetUserID should return false when not set")
	}
	if userID != "" {
		t.Errorf("user_id = %q, want empty string", userID)
	}
}

func TestGetSessionID_ReturnsFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()

	sessionID, ok := GetSessionID(ctx)
	if ok {
		t.Error("GetSessionID should return false when not set")
	}
	if sessionID != "" {
		t.Errorf("session_id = %q, want empty string", sessionID)
	}
}
