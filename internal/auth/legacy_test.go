package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signLegacy(t *testing.T, secret string, claims LegacyClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestValidateLegacyToken(t *testing.T) {
	signed := signLegacy(t, "gateway-secret", LegacyClaims{
		UserID: "user-42",
		Email:  "singer@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ValidateLegacyToken(signed, "gateway-secret")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Fatalf("UserID = %q, want user-42", claims.UserID)
	}
	if claims.Email != "singer@example.com" {
		t.Fatalf("Email = %q", claims.Email)
	}
}

func TestValidateLegacyTokenWrongSecret(t *testing.T) {
	signed := signLegacy(t, "gateway-secret", LegacyClaims{
		UserID: "user-42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := ValidateLegacyToken(signed, "some-other-secret"); err == nil {
		t.Fatal("token signed with a different secret was accepted")
	}
}

func TestValidateLegacyTokenExpired(t *testing.T) {
	signed := signLegacy(t, "gateway-secret", LegacyClaims{
		UserID: "user-42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	if _, err := ValidateLegacyToken(signed, "gateway-secret"); err == nil {
		t.Fatal("expired token was accepted")
	}
}
