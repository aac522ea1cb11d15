package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	req := require.New(t)
	secret := []byte("unit-test-secret")

	token, err := GenerateToken(secret, "alice@example.com", "uid-1", "Alice", time.Hour)
	req.NoError(err)

	claims, err := ValidateToken(secret, token)
	req.NoError(err)
	req.Equal("alice@example.com", claims.Identity)
	req.Equal("uid-1", claims.UID)
	req.Equal("Alice", claims.DisplayName)
	req.Equal("chat-sync", claims.Issuer)
}

func TestToken_WrongSecretRejected(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken([]byte("right"), "alice@example.com", "uid-1", "Alice", time.Hour)
	req.NoError(err)

	_, err = ValidateToken([]byte("wrong"), token)
	req.Error(err)
}

func TestToken_ExpiredRejected(t *testing.T) {
	req := require.New(t)
	secret := []byte("unit-test-secret")

	token, err := GenerateToken(secret, "alice@example.com", "uid-1", "Alice", -time.Minute)
	req.NoError(err)

	_, err = ValidateToken(secret, token)
	req.Error(err)
}
