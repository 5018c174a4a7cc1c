// Package callback mints and verifies the bearer token embedded in a
// manifest's Callback.Headers, scoping each worker's response POST to
// the one function_run_id it was dispatched for (section 4.5, "the
// Dispatcher verifies the callback token"). Grounded on the teacher's
// api/jwt.go handlers, generalized from an operator session token to a
// short-lived, single-subject dispatch token. A token is not consumed
// by use: it verifies for its run as often as it is presented until it
// expires.
package callback

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSigner mints and verifies HS256 callback tokens.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner returns a signer using secret, with tokens valid for
// ttl after minting (bounding how long a worker has to report back
// before the Dispatcher's own lease-expiry reaper takes over).
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: secret, ttl: ttl}
}

// Mint returns a token scoped to functionRunID.
func (s *TokenSigner) Mint(functionRunID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": functionRunID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks tokenString's signature, expiry, and that it was
// minted for functionRunID.
func (s *TokenSigner) Verify(tokenString, functionRunID string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("callback token invalid: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("callback token invalid")
	}
	sub, _ := claims["sub"].(string)
	if sub != functionRunID {
		return fmt.Errorf("callback token scoped to a different function_run_id")
	}
	return nil
}
