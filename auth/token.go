// Package auth issues and validates the local session tokens handed to
// the presentation layer after sign-in.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims carry the signed-in identity and the profile snapshot
// the shell displays. Permission flags are deliberately not embedded:
// they are live state owned by the gate, and a token must not freeze
// them.
type SessionClaims struct {
	Identity    string `json:"identity"`
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed session token.
func GenerateToken(secret []byte, identity, uid, displayName string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		Identity:    identity,
		UID:         uid,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-sync",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses a session token and returns its claims.
func ValidateToken(secret []byte, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
