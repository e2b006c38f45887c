// Package auth protects the non-public HTTP surface. Callers present the
// shared API key directly, or exchange it for a short-lived HS256 bearer
// token when holding the long-lived key is undesirable (browser clients).
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL bounds how long an exchanged bearer token stays valid.
const TokenTTL = 1 * time.Hour

// Prefixes that bypass authentication: health, metrics, and webhook
// delivery (which has its own HMAC verification).
var exemptPrefixes = []string{"/healthz", "/metrics", "/webhooks/"}

// Config carries the immutable auth settings.
type Config struct {
	APIKey    string
	JWTSecret []byte
}

// Authenticator validates API keys and mints/validates bearer tokens.
type Authenticator struct {
	cfg Config
}

// New creates an Authenticator. An empty API key disables authentication
// entirely (local development).
func New(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Enabled reports whether requests are required to authenticate.
func (a *Authenticator) Enabled() bool { return a.cfg.APIKey != "" }

type claims struct {
	jwt.RegisteredClaims
}

// MintToken exchanges a valid API key for a signed short-lived token.
func (a *Authenticator) MintToken(apiKey string) (string, error) {
	if !a.Enabled() {
		return "", errors.New("authentication is disabled")
	}
	if apiKey != a.cfg.APIKey {
		return "", errors.New("invalid api key")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "api-client",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	})
	return token.SignedString(a.cfg.JWTSecret)
}

// ValidateToken checks a bearer token's signature and expiry.
func (a *Authenticator) ValidateToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.cfg.JWTSecret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// Middleware requires a matching X-API-Key header or a valid bearer token
// on protected routes. When no API key is configured it is a no-op, and
// exempt prefixes always pass through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		for _, prefix := range exemptPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if r.Header.Get("X-API-Key") == a.cfg.APIKey {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			if err := a.ValidateToken(strings.TrimPrefix(header, "Bearer ")); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Invalid or missing API key", http.StatusUnauthorized)
	})
}
