package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func withSecret(t *testing.T) {
	t.Helper()
	t.Setenv("MESHLOCKR_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestTokenRoundTrip(t *testing.T) {
	withSecret(t)

	token, err := GenerateToken("user-1", "org-1", []string{"Admin", "admin", " member "}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "user-1" || claims.OrgID != "org-1" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" || claims.Roles[1] != "member" {
		t.Fatalf("roles not deduplicated/normalized: %v", claims.Roles)
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t)

	if _, err := GenerateToken("", "org-1", nil, time.Minute); err == nil {
		t.Fatal("expected error for empty user")
	}
	if _, err := GenerateToken("user-1", "org-1", nil, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestParseRejectsGarbageAndExpired(t *testing.T) {
	withSecret(t)

	if _, err := ParseAndValidate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	token, err := GenerateToken("user-1", "org-1", []string{"admin"}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("MESHLOCKR_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if Enabled() {
		t.Fatal("auth should be disabled without a secret")
	}
	if _, err := GenerateToken("user-1", "org-1", nil, time.Minute); err == nil {
		t.Fatal("expected missing-secret error")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithUser(context.Background(), "user-1", "org-1", []string{"Admin"})

	if uid, ok := UserIDFromContext(ctx); !ok || uid != "user-1" {
		t.Fatalf("user id: %q %v", uid, ok)
	}
	if org, ok := OrgIDFromContext(ctx); !ok || org != "org-1" {
		t.Fatalf("org id: %q %v", org, ok)
	}
	if !HasRole(ctx, "ADMIN") {
		t.Fatal("role check should be case-insensitive")
	}
	if HasRole(ctx, "owner") {
		t.Fatal("unexpected role")
	}
	if HasRole(context.Background(), "admin") {
		t.Fatal("empty context should have no roles")
	}
}
