package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"meridian/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	sessionStore, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return sessionStore, s
}

func testModerator(id string) store.Moderator {
	return store.Moderator{
		ID:          id,
		Email:       id + "@meridianadvisory.dev",
		DisplayName: "Moderator " + id,
		Role:        "moderator",
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	sessionStore, s := setupTestRedis(t)
	defer sessionStore.Close()
	defer s.Close()

	ctx := context.Background()
	moderator := testModerator("mod-123")
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := sessionStore.SaveRefreshSession(ctx, "hash-1", moderator, expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := sessionStore.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.ID != moderator.ID || got.Email != moderator.Email || got.Role != "moderator" {
		t.Errorf("moderator mismatch: got %+v", got)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	sessionStore, s := setupTestRedis(t)
	defer sessionStore.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(1 * time.Millisecond)
	if err := sessionStore.SaveRefreshSession(ctx, "expired-hash", testModerator("mod-456"), expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := sessionStore.LookupRefreshSession(ctx, "expired-hash"); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	sessionStore, s := setupTestRedis(t)
	defer sessionStore.Close()
	defer s.Close()

	if _, err := sessionStore.LookupRefreshSession(context.Background(), "missing"); err == nil {
		t.Error("expected error for non-existent token, got nil")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	sessionStore, s := setupTestRedis(t)
	defer sessionStore.Close()
	defer s.Close()

	ctx := context.Background()
	if err := sessionStore.SaveRefreshSession(ctx, "hash-revoke", testModerator("mod-789"), time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	if err := sessionStore.RevokeRefreshSession(ctx, "hash-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}

	if _, err := sessionStore.LookupRefreshSession(ctx, "hash-revoke"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}

	// Revoking a token that is already gone should not error.
	if err := sessionStore.RevokeRefreshSession(ctx, "hash-revoke"); err != nil {
		t.Errorf("second revoke failed: %v", err)
	}
}
