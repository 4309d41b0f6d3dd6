package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed token")

// Claims is the subset of the backend's JWT payload the client cares about.
// The signing key lives on the server; we only peek at the claims to recover
// the username across restarts and to detect expiry before dialing.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Peek decodes the claims without verifying the signature. Verification is
// the backend's job; a forged token buys nothing client-side.
func Peek(token string) (*Claims, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, ErrMalformedToken
	}
	return &claims, nil
}

// Expired reports whether the token's exp claim has passed. Tokens without
// an exp claim are treated as still valid.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(c.ExpiresAt.Time)
}
