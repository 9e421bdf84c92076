package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// SessionCookie carries the HS256 session token.
	SessionCookie = "ftops_session"
	// DebugEmailHeader names the caller when no session secret is configured.
	DebugEmailHeader = "X-Debug-Email"
	// DevEmail is the identity of anonymous callers in open mode.
	DevEmail = "dev@local"
)

type AuthConfig struct {
	// SessionSecret enables session enforcement when set.
	SessionSecret string
	Logger        *zap.Logger
}

type Principal struct {
	Email  string
	Source string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// authorEmail is the identity recorded on notes.
func authorEmail(ctx context.Context) string {
	if p, ok := principalFromContext(ctx); ok && p.Email != "" {
		return p.Email
	}
	return DevEmail
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

// IssueSession signs a session token for email, valid for ttl.
func IssueSession(secret, email string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("session secret not configured")
	}
	if strings.TrimSpace(email) == "" {
		return "", errors.New("email is required")
	}
	claims := jwtClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   email,
		Issuer:    "ftops",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateSession(token string, secret string) (Principal, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{Email: claims.Subject, Source: "session"}, nil
}

// public reports whether a route is reachable without a session.
func public(basePath, p string) bool {
	switch p {
	case path.Join("/", basePath, "health"), path.Join("/", basePath, "openapi.json"), path.Join("/", basePath, "docs"):
		return true
	}
	rest := strings.TrimPrefix(p, path.Join("/", basePath, "ingest")+"/")
	return rest != p && strings.HasSuffix(rest, "/webhook")
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if cfg.SessionSecret == "" {
				email := strings.TrimSpace(req.Header.Get(DebugEmailHeader))
				source := "debug_header"
				if email == "" {
					email, source = DevEmail, "anonymous"
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{Email: email, Source: source})))
				return
			}
			if public(basePath, req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			cookie, err := req.Cookie(SessionCookie)
			if err != nil || strings.TrimSpace(cookie.Value) == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "session required", nil))
				return
			}
			principal, err := authenticateSession(cookie.Value, cfg.SessionSecret)
			if err != nil {
				logger.Debug("session rejected", zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_session", "invalid session", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
