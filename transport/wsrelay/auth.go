// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package wsrelay

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints and verifies the demo relay's bearer tokens. It is
// HMAC-based (HS256) rather than the teacher's RS256 flow: the relay
// is a single trusted process minting its own tokens, not a
// third-party identity provider, so there is no separate key to keep
// private from a verifier that is also the issuer.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer around secret, the relay's signing
// key.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Mint issues a bearer token scoping the holder to sessionID.
func (t *TokenIssuer) Mint(sessionID string) (string, error) {
	claims := jwt.MapClaims{
		"sid": sessionID,
		"exp": jwt.NewNumericDate(time.Now().Add(t.ttl)),
		"iat": jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify parses raw and returns the session ID it authorizes.
func (t *TokenIssuer) Verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("wsrelay: invalid bearer token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("wsrelay: invalid token claims")
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", fmt.Errorf("wsrelay: token missing session id")
	}
	return sid, nil
}
