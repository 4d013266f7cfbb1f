package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcqkaramu/server/internal/auth"
	"github.com/mcqkaramu/server/internal/model"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	deviceIDKey contextKey = "device_id"
)

// DeviceIDHeader carries the client's device id
const DeviceIDHeader = "X-Device-Id"

// AuthMiddleware verifies the bearer token with the identity oracle and attaches the user id to the context
func AuthMiddleware(oracle auth.IdentityOracle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header with Bearer token is required", model.CodeUnauthorized)
				return
			}

			userID, err := oracle.VerifyToken(r.Context(), token)
			if err != nil {
				slog.DebugContext(r.Context(), "bearer token rejected", slog.Any("error", err))
				respondWithError(w, http.StatusUnauthorized, "Unauthorized", model.CodeUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID string) context.Context {
	if slot, ok := ctx.Value(userIDSlotKey).(*userIDSlot); ok {
		slot.userID = userID
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the authenticated user id
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// DeviceIDFromContext extracts the device id accepted by SessionMiddleware
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceIDKey).(string)
	return deviceID, ok && deviceID != ""
}
