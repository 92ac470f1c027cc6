package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("svc-dashboard", "Dashboard", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "svc-dashboard" || claims.Name != "Dashboard" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("svc", "", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := Parse(token, "other"); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := GenerateToken("svc", "", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := Parse(token, "secret"); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := GenerateToken("svc", "", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := Parse("x.y.z", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
