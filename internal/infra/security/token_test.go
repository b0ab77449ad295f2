package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifierRequiresSecret(t *testing.T) {
	if _, err := NewServiceTokenVerifier("", "siteproof-platform"); err == nil {
		t.Fatal("expected an error for an empty secret")
	}
}

func TestSignAndVerify(t *testing.T) {
	verifier, err := NewServiceTokenVerifier("test-secret", "siteproof-platform")
	if err != nil {
		t.Fatalf("NewServiceTokenVerifier returned error: %v", err)
	}

	token, err := verifier.Sign("siteproof-api", time.Minute)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Service != "siteproof-api" {
		t.Fatalf("expected service claim siteproof-api, got %q", claims.Service)
	}
	if claims.Issuer != "siteproof-platform" {
		t.Fatalf("expected issuer claim, got %q", claims.Issuer)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	verifier, err := NewServiceTokenVerifier("test-secret", "siteproof-platform")
	if err != nil {
		t.Fatalf("NewServiceTokenVerifier returned error: %v", err)
	}

	token, err := verifier.Sign("siteproof-api", -time.Minute)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredServiceToken) {
		t.Fatalf("expected ErrExpiredServiceToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer, err := NewServiceTokenVerifier("signing-secret", "siteproof-platform")
	if err != nil {
		t.Fatalf("NewServiceTokenVerifier returned error: %v", err)
	}
	verifier, err := NewServiceTokenVerifier("other-secret", "siteproof-platform")
	if err != nil {
		t.Fatalf("NewServiceTokenVerifier returned error: %v", err)
	}

	token, err := signer.Sign("siteproof-api", time.Minute)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidServiceToken) {
		t.Fatalf("expected ErrInvalidServiceToken, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	verifier, err := NewServiceTokenVerifier("test-secret", "siteproof-platform")
	if err != nil {
		t.Fatalf("NewServiceTokenVerifier returned error: %v", err)
	}

	claims := ServiceClaims{
		Service: "siteproof-api",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidServiceToken) {
		t.Fatalf("expected ErrInvalidServiceToken, got %v", err)
	}
}

func TestVerifyRejectsNonHMACAlgorithm(t *testing.T) {
	verifier, err := NewServiceTokenVerifier("test-secret", "siteproof-platform")
	if err != nil {
		t.Fatalf("NewServiceTokenVerifier returned error: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodNone, ServiceClaims{
		Service: "siteproof-api",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "siteproof-platform",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}

	if _, err := verifier.Verify(unsigned); !errors.Is(err, ErrInvalidServiceToken) {
		t.Fatalf("expected ErrInvalidServiceToken, got %v", err)
	}
}
