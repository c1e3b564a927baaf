package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const AccessToken TokenKind = "access"

// Claims is the payload of an HTTP access token. Subject is the peer id.
type Claims struct {
	Type TokenKind `json:"type"`
	jwt.RegisteredClaims
}

func newAccessClaims(subject, issuer string, expiry time.Duration, now time.Time) *Claims {
	c := &Claims{
		Type: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  subject,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	// zero expiry issues a token that never expires
	if expiry > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	}
	return c
}

func (c *Claims) sign(secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// parseAccessToken verifies signature, expiry, issuer and kind
func parseAccessToken(raw, secret, issuer string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}
	if claims.Type != AccessToken {
		return nil, fmt.Errorf("wrong token type %q", claims.Type)
	}
	return claims, nil
}
