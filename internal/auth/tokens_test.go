package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour, nil)
	identity := Identity{ID: "u-0011223344556677", Name: "alice"}

	signed, err := tokens.Issue(identity)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	verified, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified != identity {
		t.Fatalf("expected %+v, got %+v", identity, verified)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	clock := issuedAt
	tokens := NewTokens("test-secret", time.Hour, func() time.Time { return clock })

	signed, err := tokens.Issue(Identity{ID: "u-1", Name: "alice"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	clock = issuedAt.Add(59 * time.Minute)
	if _, err := tokens.Verify(signed); err != nil {
		t.Fatalf("expected token still valid before expiry, got %v", err)
	}

	clock = issuedAt.Add(2 * time.Hour)
	if _, err := tokens.Verify(signed); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after expiry, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, err := NewTokens("secret-a", time.Hour, nil).Issue(Identity{ID: "u-1", Name: "alice"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := NewTokens("secret-b", time.Hour, nil).Verify(signed); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a foreign secret, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour, nil)

	for _, token := range []string{"", "not-a-token", "aaaa.bbbb.cccc"} {
		if _, err := tokens.Verify(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", token, err)
		}
	}
}

func TestVerifyTokenRequiresLiveAccount(t *testing.T) {
	store := newTestStore(t)
	tokens := NewTokens("test-secret", time.Hour, nil)
	service := NewService(store, tokens)

	identity, err := service.Register("alice", "correct horse")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	signed, err := service.Login("alice", "correct horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	verified, err := service.VerifyToken(signed)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified.ID != identity.ID {
		t.Fatalf("expected id %q, got %q", identity.ID, verified.ID)
	}

	// A token for an account id the store never saw behaves like any other
	// bad token.
	foreign, err := tokens.Issue(Identity{ID: "u-deadbeef", Name: "ghost"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := service.VerifyToken(foreign); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a deleted account, got %v", err)
	}
}

func TestLoginFailuresAreOpaque(t *testing.T) {
	store := newTestStore(t)
	service := NewService(store, NewTokens("test-secret", time.Hour, nil))

	if _, err := service.Register("alice", "correct horse"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := service.Login("alice", "wrong password"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := service.Login("nobody", "correct horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
