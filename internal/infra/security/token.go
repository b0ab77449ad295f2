package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidServiceToken indicates a token that failed signature or claim checks.
	ErrInvalidServiceToken = errors.New("security: invalid service token")
	// ErrExpiredServiceToken indicates a token past its expiry.
	ErrExpiredServiceToken = errors.New("security: service token expired")
)

// ServiceTokenVerifier validates HMAC-signed service tokens presented by
// platform callers on administrative routes.
type ServiceTokenVerifier struct {
	secret []byte
	issuer string
}

// ServiceClaims are the claims carried by a platform service token.
type ServiceClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// NewServiceTokenVerifier builds a verifier for the shared signing secret.
func NewServiceTokenVerifier(secret, issuer string) (*ServiceTokenVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("security: service token secret must not be empty")
	}
	return &ServiceTokenVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify parses and validates a compact token, returning its claims.
func (v *ServiceTokenVerifier) Verify(token string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredServiceToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceToken, err)
	}

	if !parsed.Valid {
		return nil, ErrInvalidServiceToken
	}

	return claims, nil
}

// Sign issues a token for the named service; used by tests and tooling.
func (v *ServiceTokenVerifier) Sign(service string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}
