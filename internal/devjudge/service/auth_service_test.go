package service

import (
	"context"
	"testing"
	"time"

	appErr "ojwatch/pkg/errors"
)

func TestIssueAndAuthenticate(t *testing.T) {
	auth := NewAuthService("secret", "ojwatch-dev", time.Hour)
	token, expiresAt, err := auth.IssueToken(12, "user")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expiry should be in the future: %v", expiresAt)
	}
	info, err := auth.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if info.ID != 12 || info.Role != "user" {
		t.Fatalf("unexpected user: %+v", info)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	auth := NewAuthService("secret", "ojwatch-dev", time.Hour)
	other := NewAuthService("other-secret", "ojwatch-dev", time.Hour)
	foreign, _, err := other.IssueToken(1, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	wrongIssuer, _, err := NewAuthService("secret", "someone-else", time.Hour).IssueToken(1, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	cases := map[string]appErr.ErrorCode{
		"":          appErr.Unauthorized,
		"garbage":   appErr.TokenInvalid,
		foreign:     appErr.TokenInvalid,
		wrongIssuer: appErr.TokenInvalid,
	}
	for raw, want := range cases {
		if _, err := auth.Authenticate(context.Background(), raw); !appErr.Is(err, want) {
			t.Fatalf("token %q: expected code %d, got %v", raw, want, err)
		}
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	auth := NewAuthService("secret", "", time.Minute)
	issuedAt := time.Now()
	auth.now = func() time.Time { return issuedAt }
	token, _, err := auth.IssueToken(3, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	auth.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := auth.Authenticate(context.Background(), token); !appErr.Is(err, appErr.TokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestIssueTokenValidation(t *testing.T) {
	if _, _, err := NewAuthService("secret", "", 0).IssueToken(0, ""); !appErr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := NewAuthService("", "", 0).IssueToken(1, ""); !appErr.Is(err, appErr.TokenGenerationFailed) {
		t.Fatalf("expected generation failure, got %v", err)
	}
}
