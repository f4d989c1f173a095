package auth

import (
	"errors"
	"testing"
	"time"
)

func setTestSecret(t *testing.T) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv(secretEnvVariable, "unit-test-secret")
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndParseToken(t *testing.T) {
	setTestSecret(t)

	signed, err := GenerateToken("user-1", "church-1", false, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(signed)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", claims.Subject)
	}
	if claims.ChurchID != "church-1" {
		t.Fatalf("church = %q, want church-1", claims.ChurchID)
	}
	if claims.Superuser {
		t.Fatal("superuser flag set unexpectedly")
	}
	if claims.ID == "" {
		t.Fatal("jti missing")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	setTestSecret(t)
	if _, err := GenerateToken("", "", false, time.Minute); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := GenerateToken("user-1", "", false, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	setTestSecret(t)
	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: error = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestParseAndValidateRejectsExpired(t *testing.T) {
	setTestSecret(t)
	signed, err := GenerateToken("user-1", "", false, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}

func TestParseAndValidateRejectsWrongSecret(t *testing.T) {
	setTestSecret(t)
	signed, err := GenerateToken("user-1", "", true, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	ResetSecretForTests()
	t.Setenv(secretEnvVariable, "a-different-secret")
	if _, err := ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenRequiresSecret(t *testing.T) {
	ResetSecretForTests()
	t.Setenv(secretEnvVariable, "")
	t.Cleanup(ResetSecretForTests)
	if _, err := GenerateToken("user-1", "", false, time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("empty password accepted")
	}
}
