// Package auth turns bearer tokens into the identity the chat core trusts.
package auth

import (
	"campus-chat/domain/chat"
	"campus-chat/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "campus-chat"

// CustomClaims is what the identity provider signs for a user:
// who they are, which college they belong to and whether it was verified.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	College  string `json:"college"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

func (c CustomClaims) Identity() chat.Identity {
	return chat.Identity{UserID: c.UserID, College: chat.RoomID(c.College), Verified: c.Verified}
}

type TokenManager struct {
	secret   []byte
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration}
}

// Generate signs a HS256 token for an identity.
func (m *TokenManager) Generate(identity chat.Identity) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:   identity.UserID,
		College:  string(identity.College),
		Verified: identity.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate checks signature, algorithm and expiry.
func (m *TokenManager) Validate(token string) (*CustomClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &CustomClaims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*CustomClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid claims", errors.ErrUnauthenticated)
	}
	return claims, nil
}
