package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"

	"go.uber.org/zap"
)

type contextKey string

const callerKey contextKey = "caller"

// TokenValidator turns a bearer token into the calling principal.
type TokenValidator interface {
	ValidateAccessToken(token string) (domain.Caller, error)
}

// JWTAuthMiddleware validates Bearer tokens and injects the caller into context.
func JWTAuthMiddleware(auth TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			tokenString, ok := bearer(authHeader)
			if !ok {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			caller, err := auth.ValidateAccessToken(tokenString)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware injects the caller when a valid token is present
// and lets anonymous requests through. A malformed or expired token is
// still rejected so a stale session never silently becomes public.
func OptionalAuthMiddleware(auth TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	strict := JWTAuthMiddleware(auth, logger)
	return func(next http.Handler) http.Handler {
		guarded := strict(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// CallerFromContext extracts the authenticated caller from context.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerKey).(domain.Caller)
	return c, ok
}

// mustCaller is used behind JWTAuthMiddleware, where a caller is always set.
func mustCaller(r *http.Request) domain.Caller {
	c, _ := CallerFromContext(r.Context())
	return c
}
