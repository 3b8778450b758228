package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		Sub:   "mod_123",
		Email: "moderator@meridianadvisory.dev",
		Role:  "moderator",
		JTI:   "jti_abc",
		Exp:   time.Now().Add(time.Hour).Unix(),
	}

	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Email != claims.Email || parsed.Role != claims.Role {
		t.Errorf("claims mismatch: got %+v", parsed)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret-a"), Claims{
		Sub:   "mod_1",
		Email: "a@b.dev",
		JTI:   "jti_1",
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := ParseToken([]byte("secret-b"), token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{
		Sub:   "mod_1",
		Email: "a@b.dev",
		JTI:   "jti_1",
		Exp:   time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := ParseToken(secret, token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseMalformedToken(t *testing.T) {
	for _, raw := range []string{"", "no-dot", "a.b.c", "!!!.???"} {
		if _, err := ParseToken([]byte("secret"), raw); err == nil {
			t.Errorf("expected error for %q, got nil", raw)
		}
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("refresh-token")
	b := HashToken("refresh-token")
	if a != b {
		t.Error("hash is not stable")
	}
	if a == HashToken("other-token") {
		t.Error("distinct tokens hash identically")
	}
	if strings.ContainsAny(a, "./+") {
		t.Errorf("hash contains unexpected characters: %s", a)
	}
}
