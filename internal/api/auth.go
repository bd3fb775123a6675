// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/fraudguard/internal/logging"
)

// Claims are the JWT claims accepted on the risk endpoints. Callers are
// platform services, not end users; Subject identifies the service.
type Claims struct {
	Service string `json:"service,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 bearer tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the shared platform secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required but was empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

// Verify parses and validates a token string.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// RequireBearer is the authentication middleware for the risk endpoints.
// A nil verifier (no secret configured, development mode) disables auth.
func RequireBearer(verifier *JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			if _, err := verifier.Verify(token); err != nil {
				logging.Debug().Err(err).Str("path", r.URL.Path).Msg("token validation failed")
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
