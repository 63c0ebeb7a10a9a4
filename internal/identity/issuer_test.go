package identity

import (
	"errors"
	"testing"
	"time"
)

func TestIssuedTokenValidatesAgainstProvider(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("shared-secret"),
		Issuer:        "quill-auth",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}

	token, expiresIn, err := issuer.IssueSessionToken("user-1", "u@example.com", "User One")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", expiresIn)
	}

	provider, err := NewSessionProvider(SessionProviderConfig{
		SigningSecret: []byte("shared-secret"),
		Issuer:        "quill-auth",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct provider: %v", err)
	}

	claims, err := provider.ValidateToken(token)
	if err != nil {
		t.Fatalf("issued token must validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.UserEmail != "u@example.com" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestIssuerRejectsMissingConfiguration(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{Issuer: "x"}); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected missing-key error, got %v", err)
	}
	if _, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("s")}); !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected missing-issuer error, got %v", err)
	}
}

func TestIssuerRejectsEmptyUser(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("s"),
		Issuer:        "quill-auth",
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken("", "", ""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing-subject error, got %v", err)
	}
}

func TestIssuedTokenExpires(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("s"),
		Issuer:        "quill-auth",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	token, _, err := issuer.IssueSessionToken("user-1", "", "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	provider, err := NewSessionProvider(SessionProviderConfig{
		SigningSecret: []byte("s"),
		Issuer:        "quill-auth",
		Clock:         func() time.Time { return now.Add(2 * time.Minute) },
	})
	if err != nil {
		t.Fatalf("failed to construct provider: %v", err)
	}
	if _, err := provider.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}
