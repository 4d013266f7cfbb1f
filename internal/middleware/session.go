package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcqkaramu/server/internal/model"
)

// DeviceValidator checks a user's active device
type DeviceValidator interface {
	IsValidDevice(ctx context.Context, userID, deviceID string) (bool, error)
}

// deviceLockExemptPaths skip the device check; matched as substrings of the request path
var deviceLockExemptPaths = []string{
	"/update-device",
	"/subscription/get-status",
	"/subscription/get-charging-info",
}

func isDeviceLockExempt(path string) bool {
	for _, p := range deviceLockExemptPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// SessionMiddleware rejects requests whose X-Device-Id is not the user's active device.
// It must run after AuthMiddleware.
func SessionMiddleware(sessions DeviceValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isDeviceLockExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			deviceID := strings.TrimSpace(r.Header.Get(DeviceIDHeader))
			if deviceID == "" {
				respondWithError(w, http.StatusUnauthorized, "Device ID is required", model.CodeUnauthorized)
				return
			}

			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "User authentication required", model.CodeUnauthorized)
				return
			}

			valid, err := sessions.IsValidDevice(r.Context(), userID, deviceID)
			if err != nil {
				slog.ErrorContext(r.Context(), "device check failed", slog.String("user_id", userID), slog.Any("error", err))
				respondWithError(w, http.StatusInternalServerError, "Internal server error", model.CodeInternalServerError)
				return
			}
			if !valid {
				mismatch := model.NewDeviceMismatchError()
				respondWithError(w, mismatch.Status, mismatch.Message, mismatch.Code)
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
