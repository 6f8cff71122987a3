package auth

import (
	"testing"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateToken("rc-100", models.PlatformClio)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken failed: %v", err)
	}
	if claims.UserID != "rc-100" {
		t.Errorf("userID = %q", claims.UserID)
	}
	if claims.Platform != "clio" {
		t.Errorf("platform = %q", claims.Platform)
	}
}

func TestDecodeTokenRejectsTampering(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateToken("rc-100", models.PlatformClio)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	_, err = DecodeToken(token + "x")
	if err == nil {
		t.Fatal("expected error for tampered token")
	}
	if crmerr.KindOf(err) != crmerr.KindAuth {
		t.Errorf("kind = %v, want auth", crmerr.KindOf(err))
	}
}

func TestDecodeTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "first-secret")
	token, err := GenerateToken("rc-100", models.PlatformPipedrive)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	t.Setenv("JWT_SECRET", "second-secret")
	if _, err := DecodeToken(token); err == nil {
		t.Error("expected error when secret rotated")
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := GenerateToken("rc-100", models.PlatformClio); err == nil {
		t.Error("expected error when JWT_SECRET unset")
	}
}
