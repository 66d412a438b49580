// Package auth implements bearer-token authentication for the HTTP surface.
//
// Tokens are HS256 JWTs signed with a shared secret from the configuration.
// When no secret is configured the middleware passes everything through,
// which is the expected mode for bench use on a trusted host.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure.
var ErrInvalidToken = errors.New("UNAUTHORIZED")

// Middleware guards mutating routes with JWT verification.
type Middleware struct {
	secret []byte
}

// NewMiddleware creates a middleware. An empty secret disables auth.
func NewMiddleware(secret string) *Middleware {
	m := &Middleware{}
	if secret != "" {
		m.secret = []byte(secret)
	}
	return m
}

// Enabled reports whether a secret is configured.
func (m *Middleware) Enabled() bool {
	return m.secret != nil
}

// RequireAuth wraps a handler with bearer-token verification.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	if !m.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			unauthorized(w)
			return
		}
		if err := m.verify(token); err != nil {
			unauthorized(w)
			return
		}
		next(w, r)
	}
}

func (m *Middleware) verify(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", ErrInvalidToken)
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("%w: not a bearer token", ErrInvalidToken)
	}
	return strings.TrimPrefix(header, prefix), nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"result":"error","code":"UNAUTHORIZED","message":"Authentication required"}`))
}
