package auth

import (
	"testing"
	"time"
)

func TestCreateAndVerifyToken(t *testing.T) {
	cfg := DefaultTokenConfig("test-secret")

	tok, err := CreateToken("user-1", cfg)
	if err != nil {
		t.Fatalf("create token failed: %v", err)
	}

	claims, err := VerifyToken(tok, cfg)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", claims.UserID)
	}
	if claims.Issuer != "snipcollab" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	tok, err := CreateToken("user-1", DefaultTokenConfig("secret-a"))
	if err != nil {
		t.Fatalf("create token failed: %v", err)
	}

	if _, err := VerifyToken(tok, DefaultTokenConfig("secret-b")); err == nil {
		t.Fatalf("expected verification to fail with wrong secret")
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	cfg := TokenConfig{Secret: "test-secret", Expiry: -time.Hour, Issuer: "snipcollab"}

	if _, err := CreateToken("user-1", cfg); err == nil {
		t.Fatalf("expected create to reject non-positive expiry")
	}

	cfg.Expiry = time.Millisecond
	tok, err := CreateToken("user-1", cfg)
	if err != nil {
		t.Fatalf("create token failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := VerifyToken(tok, cfg); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateToken_MissingInputs(t *testing.T) {
	if _, err := CreateToken("", DefaultTokenConfig("s")); err == nil {
		t.Fatalf("expected error for empty userID")
	}
	if _, err := CreateToken("user-1", DefaultTokenConfig("")); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
