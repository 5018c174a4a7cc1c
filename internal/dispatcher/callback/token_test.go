package callback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsAFreshlyMintedToken(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), time.Minute)
	token, err := s.Mint("run-1")
	require.NoError(t, err)
	assert.NoError(t, s.Verify(token, "run-1"))
}

func TestVerifyRejectsTokenScopedToADifferentRun(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), time.Minute)
	token, err := s.Mint("run-1")
	require.NoError(t, err)
	assert.Error(t, s.Verify(token, "run-2"))
}

func TestVerifyRejectsTokenSignedWithAnotherSecret(t *testing.T) {
	a := NewTokenSigner([]byte("secret-a"), time.Minute)
	b := NewTokenSigner([]byte("secret-b"), time.Minute)
	token, err := a.Mint("run-1")
	require.NoError(t, err)
	assert.Error(t, b.Verify(token, "run-1"))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), -time.Second)
	token, err := s.Mint("run-1")
	require.NoError(t, err)
	assert.Error(t, s.Verify(token, "run-1"))
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), time.Minute)
	assert.Error(t, s.Verify("not-a-jwt", "run-1"))
}
