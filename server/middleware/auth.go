package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/auth"
)

// principalIDKey is the context key for storing the authenticated principal
type contextKey string

const (
	principalIDKey contextKey = "principalID"
	RequestIDKey   contextKey = "request_id"
)

// V1AuthMiddleware creates middleware for API key authentication
func V1AuthMiddleware(authenticator auth.Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing Authorization header")
				sendAuthError(w, logger)
				return
			}

			principalID, err := authenticator.Authenticate(r.Context(), authHeader)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				sendAuthError(w, logger)
				return
			}

			ctx := context.WithValue(r.Context(), principalIDKey, principalID)
			r = r.WithContext(ctx)

			logger.Debug("Principal authenticated", zap.String("principal_id", principalID))

			next.ServeHTTP(w, r)
		})
	}
}

// V1RequestIDMiddleware adds a unique request ID to each request context
func V1RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := generateRequestID()

			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			r = r.WithContext(ctx)

			next.ServeHTTP(w, r)
		})
	}
}

// generateRequestID creates a random request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Request ids are correlation aids, not secrets; a clock-derived
		// fallback keeps them unique enough.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// GetPrincipalID extracts the authenticated principal id from request context
func GetPrincipalID(ctx context.Context) (string, bool) {
	principalID, ok := ctx.Value(principalIDKey).(string)
	return principalID, ok
}

func sendAuthError(w http.ResponseWriter, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"code":"AUTHENTICATION_FAILED","message":"authentication failed"}`)); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
