// Package auth handles the bearer tokens attached to pull fetches and the
// websocket handshake.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MakeJWT mints an HS256 access token for username. The backend owns token
// issuance in production; this lives here so the token shape has one home
// and the test backend can mint tokens the client accepts.
func MakeJWT(username, tokenSecret string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	})

	return token.SignedString([]byte(tokenSecret))
}

// ValidateJWT checks signature and expiry and returns the subject username.
func ValidateJWT(tokenString, tokenSecret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", errors.New("internal/auth: token is invalid")
	}

	return claims.Subject, nil
}

// Token is a parsed access token held by the client. The client has no
// signing secret, so claims are read unverified; only the server can check
// the signature.
type Token struct {
	raw    string
	claims jwt.RegisteredClaims
}

// ParseToken reads the claims out of a raw token without verifying the
// signature.
func ParseToken(raw string) (*Token, error) {
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	return &Token{raw: raw, claims: *claims}, nil
}

// Raw returns the encoded token for the Authorization header.
func (t *Token) Raw() string { return t.raw }

// Subject returns the username the token was issued to.
func (t *Token) Subject() string { return t.claims.Subject }

// Expired reports whether the token's expiry has passed. Tokens without an
// expiry claim never expire from the client's point of view.
func (t *Token) Expired() bool {
	if t.claims.ExpiresAt == nil {
		return false
	}
	return time.Now().After(t.claims.ExpiresAt.Time)
}
